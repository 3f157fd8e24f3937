package mongo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsTransient(t *testing.T) {
	transient := mongo.CommandError{
		Code:   112,
		Name:   "WriteConflict",
		Labels: []string{LabelTransientTransaction},
	}
	unknownCommit := mongo.CommandError{Labels: []string{LabelUnknownCommitResult}}

	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(fmt.Errorf("transaction failed: %w", transient)))
	assert.True(t, IsTransient(unknownCommit))
	assert.False(t, IsTransient(mongo.CommandError{Code: 11000}))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestIsWriteConflict(t *testing.T) {
	assert.True(t, IsWriteConflict(mongo.CommandError{Code: 112, Name: "WriteConflict"}))
	assert.False(t, IsWriteConflict(mongo.CommandError{Code: 11000}))
	assert.False(t, IsWriteConflict(errors.New("plain")))
}
