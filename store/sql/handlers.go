package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func bankAccountHandlers() repository.ModelHandlers[*bankAccountRecord] {
	return uuidKeyedHandlers(
		func() *bankAccountRecord { return &bankAccountRecord{} },
		func(record *bankAccountRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func userProfileHandlers() repository.ModelHandlers[*userProfileRecord] {
	return uuidKeyedHandlers(
		func() *userProfileRecord { return &userProfileRecord{} },
		func(record *userProfileRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

// uuidKeyedHandlers serves rows whose primary key is a uuid stored as text
// in the "id" column. idField returns nil for a nil record.
func uuidKeyedHandlers[T any](newRecord func() T, idField func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if id := idField(record); id != nil {
				return parseUUID(*id)
			}
			return uuid.Nil
		},
		SetID: func(record T, id uuid.UUID) {
			if field := idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			if id := idField(record); id != nil {
				return strings.TrimSpace(*id)
			}
			return ""
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
