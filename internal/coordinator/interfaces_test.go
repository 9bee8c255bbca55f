package coordinator

import (
	"github.com/nikmy/mongotx/internal/driver"
)

//go:generate mockgen -source=interfaces_test.go -destination=mocks_test.go -package=coordinator

type driverSession interface {
	driver.Session
}
