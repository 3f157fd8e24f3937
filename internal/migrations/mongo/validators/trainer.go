package validators

import "go.mongodb.org/mongo-driver/bson"

var TrainerValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"name"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":     bson.M{"bsonType": "objectId"},
			"name":    bson.M{"bsonType": "string", "minLength": 1, "maxLength": 100},
			"user_id": bson.M{"bsonType": []string{"string", "null"}, "maxLength": 128},
		},
	},
}

var ClassValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"name"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":  bson.M{"bsonType": "objectId"},
			"name": bson.M{"bsonType": "string", "minLength": 1, "maxLength": 100},
		},
	},
}
