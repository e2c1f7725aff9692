package testing

import (
	"os"

	"github.com/jasonlryan/demucs/src/shared/config/dev"
	"github.com/jasonlryan/demucs/src/shared/lib/dynamo"
	"github.com/jasonlryan/demucs/src/shared/task/storage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// DynamoTestEnv opts a run into tests that need a local DynamoDB.
const DynamoTestEnv = "DYNAMO_TESTS"

func SkipWithoutDynamo() {
	if os.Getenv(DynamoTestEnv) == "" {
		Skip("set " + DynamoTestEnv + " to run against a local DynamoDB")
	}
}

func MakeTestDB() dynamolib.DynamoDBWrapper {
	return dynamolib.Connect(dev.DynamoConfig)
}

func ResetDB(db dynamolib.DynamoDBWrapper) {
	DeleteAllTables(db)
	CreateAllTables(db)
}

func CreateAllTables(db dynamolib.DynamoDBWrapper) {
	err := db.CreateTable(taskstorage.DefaultTasksTable, taskstorage.TableSchema{}).Run()
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
}

func DeleteAllTables(db dynamolib.DynamoDBWrapper) {
	tableNames := ExpectSuccess(db.ListTables().All())

	for _, tableName := range tableNames {
		err := db.Table(tableName).DeleteTable().Run()
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
	}
}
