package user

// Credentials - тело запросов регистрации и входа кассира.
type Credentials struct {
	Login    string `json:"login" minLength:"3" maxLength:"32" doc:"Логин кассира"`
	Password string `json:"password" minLength:"8" doc:"Пароль кассира"`
}

type registerInput struct {
	Body Credentials
}

type registerOutput struct {
	Status int
	Body   RegisterResponse
}

type RegisterResponse struct {
	ID     int    `json:"user_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type loginInput struct {
	Body Credentials
}

type loginOutput struct {
	Status int
	Body   LoginResponse
}

type LoginResponse struct {
	Token  string `json:"token,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
