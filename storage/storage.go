package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// table is the subset of *aztables.Client the store uses.
type table interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Store persists users and tasks in Azure Table Storage.
//
// Users live in the users table under partition "user"; each user has a
// companion row under partition "email" keyed by the encoded address so
// the uniqueness of emails is enforced by the table itself. Tasks are
// partitioned by owner.
type Store struct {
	users table
	tasks table
	now   func() time.Time
}

// New creates a Store from the given connection string.
func New(connStr, usersTable, tasksTable string) (*Store, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Store{users: svc.NewClient(usersTable), tasks: svc.NewClient(tasksTable), now: time.Now}, nil
}

// Ping reads at most one row of the users table.
func (s *Store) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.users.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func isNotFound(err error) bool { return statusCode(err) == http.StatusNotFound }
func isConflict(err error) bool { return statusCode(err) == http.StatusConflict }

func isPreconditionFailed(err error) bool {
	return statusCode(err) == http.StatusPreconditionFailed
}

var (
	_ table                 = (*aztables.Client)(nil)
	_ domain.UserStore      = (*Store)(nil)
	_ domain.TaskStore      = (*Store)(nil)
	_ domain.EventPublisher = (*EventQueue)(nil)
)
