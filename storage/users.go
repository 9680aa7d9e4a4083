package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// GetUser retrieves a user if present.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, _, err := s.getUser(ctx, id)
	return u, err
}

func (s *Store) getUser(ctx context.Context, id string) (*domain.User, azcore.ETag, error) {
	resp, err := s.users.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	u, err := decodeUser(resp.Value)
	if err != nil {
		return nil, "", err
	}
	return &u, resp.ETag, nil
}

// GetUserByEmail resolves the address through its reservation row.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, emailPartition, emailKey(email), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent emailReservation
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, ent.UserID)
	if err != nil || u == nil || u.Email != email {
		return nil, err
	}
	return u, nil
}

func (s *Store) allUsers(ctx context.Context) ([]domain.User, error) {
	filter := "PartitionKey eq " + quote(userPartition)
	pager := s.users.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			u, err := decodeUser(e)
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Store) ListUsers(ctx context.Context, q domain.UserQuery) ([]domain.User, error) {
	users, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}
	return window(filterUsers(users, q), q.Skip, q.Take), nil
}

func (s *Store) CountUsers(ctx context.Context, q domain.UserQuery) (int, error) {
	users, err := s.allUsers(ctx)
	if err != nil {
		return 0, err
	}
	return len(filterUsers(users, q)), nil
}

// CreateUser reserves the email and then inserts the user. A taken email
// fails with domain.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := s.reserveEmail(ctx, u.Email, u.ID); err != nil {
		return domain.User{}, err
	}
	payload, err := json.Marshal(toUserEntity(u))
	if err == nil {
		_, err = s.users.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		s.releaseEmail(ctx, u.Email)
		return domain.User{}, err
	}
	return u, nil
}

// UpdateUser replaces the user row guarded by its ETag, retrying once when
// a concurrent write wins. A changed email is reserved before the write and
// the old reservation released after it.
func (s *Store) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (domain.User, error) {
	for attempt := 0; ; attempt++ {
		cur, etag, err := s.getUser(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		if cur == nil {
			return domain.User{}, domain.ErrRecordNotFound
		}
		next := p.Apply(*cur)
		emailChanged := next.Email != cur.Email
		if emailChanged {
			if err := s.reserveEmail(ctx, next.Email, id); err != nil {
				return domain.User{}, err
			}
		}
		payload, err := json.Marshal(toUserEntity(next))
		if err == nil {
			_, err = s.users.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		}
		if err != nil {
			if emailChanged {
				s.releaseEmail(ctx, next.Email)
			}
			if isPreconditionFailed(err) && attempt == 0 {
				continue
			}
			if isNotFound(err) {
				return domain.User{}, domain.ErrRecordNotFound
			}
			return domain.User{}, err
		}
		if emailChanged {
			s.releaseEmail(ctx, cur.Email)
		}
		return next, nil
	}
}

func (s *Store) DeleteUser(ctx context.Context, id string) (domain.User, error) {
	u, _, err := s.getUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, domain.ErrRecordNotFound
	}
	if _, err := s.users.DeleteEntity(ctx, userPartition, id, nil); err != nil {
		if isNotFound(err) {
			return domain.User{}, domain.ErrRecordNotFound
		}
		return domain.User{}, err
	}
	s.releaseEmail(ctx, u.Email)
	return *u, nil
}

// reservationGrace is how long a reservation without a matching user row is
// left to its writer before another user may take it over.
const reservationGrace = 5 * time.Minute

func (s *Store) reserveEmail(ctx context.Context, email, userID string) error {
	payload, err := json.Marshal(emailEntity{entity: entity{PartitionKey: emailPartition, RowKey: emailKey(email)}, UserID: userID})
	if err != nil {
		return err
	}
	if _, err := s.users.AddEntity(ctx, payload, nil); err != nil {
		if isConflict(err) {
			return s.claimEmail(ctx, email, userID, payload)
		}
		return fmt.Errorf("reserve email: %w", err)
	}
	return nil
}

// claimEmail takes over an existing reservation when no user row carries
// the address any more, as left behind by a write interrupted between the
// reservation and the user row.
func (s *Store) claimEmail(ctx context.Context, email, userID string, payload []byte) error {
	resp, err := s.users.GetEntity(ctx, emailPartition, emailKey(email), nil)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("read email reservation: %w", err)
	}
	var res emailReservation
	if err := json.Unmarshal(resp.Value, &res); err != nil {
		return err
	}
	if res.UserID == userID {
		return nil
	}
	if s.now().Sub(res.Timestamp) < reservationGrace {
		return domain.ErrEmailTaken
	}
	owner, err := s.GetUser(ctx, res.UserID)
	if err != nil {
		return err
	}
	if owner != nil && owner.Email == email {
		return domain.ErrEmailTaken
	}

	etag := resp.ETag
	if _, err := s.users.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace}); err != nil {
		if isPreconditionFailed(err) || isNotFound(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("claim email: %w", err)
	}
	log.WithFields(log.Fields{"email": email, "previous": res.UserID, "user": userID}).Info("took over orphaned email reservation")
	return nil
}

func (s *Store) releaseEmail(ctx context.Context, email string) {
	if _, err := s.users.DeleteEntity(ctx, emailPartition, emailKey(email), nil); err != nil && !isNotFound(err) {
		log.WithField("email", email).Warnf("release email: %v", err)
	}
}
