package types

// ctxKey тип ключей контекста команд, чтобы не пересекаться с чужими значениями
type ctxKey string

// AppKey ключ, под которым собранное приложение кассы кладется
// в контекст команды
const AppKey ctxKey = "app"
