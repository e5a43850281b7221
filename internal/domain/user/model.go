package user

import "time"

// User - учетная запись кассира на сервере синхронизации.
type User struct {
	ID        int
	Login     string
	Password  string // хэш bcrypt
	CreatedAt time.Time
}
