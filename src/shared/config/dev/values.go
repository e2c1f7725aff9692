package dev

import "github.com/jasonlryan/demucs/src/shared/config"

// DynamoDB
const (
	DynamoAccessKeyID     = "local"
	DynamoSecretAccessKey = "local"
	DynamoDBHost          = "http://localhost:8000"
	DynamoDBRegion        = "localhost"
)

var DynamoConfig = config.LocalDynamo{
	AccessKeyID:     DynamoAccessKeyID,
	SecretAccessKey: DynamoSecretAccessKey,
	Region:          DynamoDBRegion,
	Host:            DynamoDBHost,
}

// RabbitMQ
const (
	RabbitMQHost      = "amqp://localhost:5672"
	RabbitMQQueueName = "stem-tasks-dev"
)

// Cloud storage emulator
const (
	CloudStorageHost     = "http://localhost:4443"
	CloudStorageEndpoint = "http://localhost:4443/storage/v1/"
)

// Filesystem
const (
	StemRoot  = "separated"
	UploadDir = "uploads"
)
