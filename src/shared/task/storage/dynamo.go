package taskstorage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/domains"
	"github.com/cockroachdb/errors/markers"
	"github.com/guregu/dynamo"
	"github.com/jasonlryan/demucs/src/shared/lib/dynamo"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/lib/jsonlib"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

const (
	DefaultTasksTable = "Tasks"
	idKey             = "id"
)

var (
	UnmarshalMark    = domains.New("task_unmarshal")
	DefaultErrorMark = domains.New("task_storage")
)

var _ taskentity.Store = DB{}

type DB struct {
	dynamoDB  dynamolib.DynamoDBWrapper
	tableName string
}

func NewDB(dynamoDB dynamolib.DynamoDBWrapper, tableName string) DB {
	if tableName == "" {
		tableName = DefaultTasksTable
	}

	return DB{
		dynamoDB:  dynamoDB,
		tableName: tableName,
	}
}

// TableSchema is the key layout of the tasks table, for table creation.
type TableSchema struct {
	ID string `dynamo:"id,hash"`
}

func (d DB) Get(ctx context.Context, id string) (taskentity.Task, error) {
	value := dbTask{}
	err := d.dynamoDB.Table(d.tableName).
		Get(idKey, id).
		OneWithContext(ctx, &value)

	if err != nil {
		switch {
		case errors.Is(err, dynamo.ErrNotFound):
			return taskentity.Task{}, mark.Wrap(err, taskentity.TaskNotFound, fmt.Sprintf("Task %s not found", id))
		case markers.Is(err, UnmarshalMark):
			return taskentity.Task{}, errors.Wrap(err, "Failed to fetch task")
		default:
			return taskentity.Task{}, mark.Wrap(err, DefaultErrorMark, "Failed to fetch task")
		}
	}

	task, err := jsonlib.MapToStruct[taskentity.Task](value)
	if err != nil {
		return taskentity.Task{}, mark.Wrap(err, UnmarshalMark, "Failed to transform DB map back to task")
	}

	return task, nil
}

func (d DB) Put(ctx context.Context, task taskentity.Task, expectedRevision int64) error {
	if task.ID == "" {
		return errors.New("Task ID is not defined")
	}

	dbObject, err := jsonlib.StructToMap(task)
	if err != nil {
		return errors.Wrap(err, "Failed to transform task to a generic map object")
	}

	put := d.dynamoDB.Table(d.tableName).Put(dbObject)
	if expectedRevision == 0 {
		put = put.If("attribute_not_exists($)", idKey)
	} else {
		put = put.If("revision = ?", expectedRevision)
	}

	err = put.RunWithContext(ctx)
	if isConditionFailure(err) {
		return mark.Wrap(err, taskentity.RevisionConflict, "Task was modified concurrently")
	}
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to put the task in the DB")
	}

	return nil
}

func isConditionFailure(err error) bool {
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return awsErr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
	}
	return false
}

var _ dynamo.ItemUnmarshaler = &dbTask{}

type dbTask map[string]any

func (d *dbTask) UnmarshalDynamoItem(dynamoItem map[string]*dynamodb.AttributeValue) error {
	if err := dynamolib.ValidateStringField(dynamoItem, idKey); err != nil {
		return mark.Wrap(err, UnmarshalMark, "Failed to validate id field")
	}

	plainMap := map[string]any{}
	if err := dynamo.UnmarshalItem(dynamoItem, &plainMap); err != nil {
		return mark.Wrap(err, UnmarshalMark, "Failed to unmarshal dynamo item")
	}

	*d = plainMap
	return nil
}
