package user

import (
	"context"
	"errors"
	"net/http"

	"salepoint/internal/domain/session"
	"salepoint/internal/domain/user"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

type Handler struct {
	service    user.Servicer
	session    session.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service user.Servicer, session session.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		session:    session,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.registerOp(), h.register)
	huma.Register(api, h.loginOp(), h.login)
}

func (h *Handler) register(ctx context.Context, input *registerInput) (*registerOutput, error) {
	userID, err := h.service.Register(ctx, input.Body.Login, input.Body.Password)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, user.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		h.log.Debug("register rejected", "login", input.Body.Login, "error", err)
		return &registerOutput{
			Status: status,
			Body:   RegisterResponse{Status: "Error", Error: err.Error()},
		}, nil
	}

	return &registerOutput{
		Status: http.StatusOK,
		Body:   RegisterResponse{ID: userID, Status: "Ok"},
	}, nil
}

func (h *Handler) login(ctx context.Context, input *loginInput) (*loginOutput, error) {
	u, err := h.service.Authenticate(ctx, input.Body.Login, input.Body.Password)
	if err != nil {
		return &loginOutput{
			Status: http.StatusUnauthorized,
			Body:   LoginResponse{Status: "Error", Error: "неверный логин или пароль"},
		}, nil
	}

	token, err := h.session.Create(ctx, u.ID)
	if err != nil {
		h.log.Error("create session", "error", err)
		return &loginOutput{
			Status: http.StatusInternalServerError,
			Body:   LoginResponse{Status: "Error", Error: "не удалось создать сессию"},
		}, nil
	}

	return &loginOutput{
		Status: http.StatusOK,
		Body:   LoginResponse{Token: token, Status: "Ok"},
	}, nil
}
