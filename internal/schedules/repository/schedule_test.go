package repository

import (
	"testing"
	"time"

	"classguard/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCandidatePipeline_MatchStage(t *testing.T) {
	loc := time.FixedZone("UTC+07:00", 7*3600)
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, loc)
	end := time.Date(2026, 3, 12, 0, 0, 0, 0, loc)

	pipeline := candidatePipeline(start, end)
	require.NotEmpty(t, pipeline)

	match, ok := pipeline[0][0].Value.(bson.M)
	require.True(t, ok)
	assert.Equal(t, "$match", pipeline[0][0].Key)
	assert.Equal(t, model.ScheduleScheduled, match["status"])
	assert.Equal(t, bson.M{"$gt": 0}, match["minimum_participants"])

	window := match["start_time"].(bson.M)
	assert.Equal(t, start.UTC(), window["$gte"])
	assert.Equal(t, end.UTC(), window["$lt"], "window end is exclusive")
	assert.Equal(t, time.UTC, window["$gte"].(time.Time).Location())
}

func TestCandidatePipeline_JoinsBookingsTrainerAndClass(t *testing.T) {
	pipeline := candidatePipeline(time.Now(), time.Now().Add(time.Hour))

	var lookups []string
	for _, stage := range pipeline {
		if stage[0].Key == "$lookup" {
			lookups = append(lookups, stage[0].Value.(bson.M)["as"].(string))
		}
	}
	assert.Equal(t, []string{"confirmed_bookings", "trainer", "class"}, lookups)
}
