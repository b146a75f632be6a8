package authorization

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Service decides whether an account may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, userID uuid.UUID, object string, action string) error
}
