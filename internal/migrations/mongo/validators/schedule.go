package validators

import "go.mongodb.org/mongo-driver/bson"

var ScheduleValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"status",
			"start_time",
			"end_time",
			"current_bookings",
			"trainer_id",
			"class_id",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"SCHEDULED",
					"IN_PROGRESS",
					"COMPLETED",
					"CANCELLED",
					"POSTPONED",
				},
			},

			"start_time": bson.M{
				"bsonType": "date",
			},

			"end_time": bson.M{
				"bsonType": "date",
			},

			// Null or non-positive means the class has no minimum.
			"minimum_participants": bson.M{
				"bsonType": []string{"int", "long", "null"},
			},

			"current_bookings": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"trainer_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"class_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"notes": bson.M{
				"bsonType": []string{"string", "null"},
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
