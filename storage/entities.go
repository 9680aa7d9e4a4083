package storage

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"taskboard-api/domain"
)

const (
	userPartition  = "user"
	emailPartition = "email"

	edmInt64 = "Edm.Int64"
)

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type userEntity struct {
	entity
	Email         string `json:"Email"`
	Name          string `json:"Name"`
	PasswordHash  string `json:"PasswordHash"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

// emailEntity reserves an address for a user.
type emailEntity struct {
	entity
	UserID string `json:"UserID"`
}

// emailReservation is an emailEntity as read back, with the service-set
// Timestamp of its last write.
type emailReservation struct {
	UserID    string    `json:"UserID"`
	Timestamp time.Time `json:"Timestamp"`
}

type taskEntity struct {
	entity
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Status        string `json:"Status"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

// emailKey encodes an address into a valid RowKey.
func emailKey(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(email))
}

func toUserEntity(u domain.User) userEntity {
	return userEntity{
		entity:        entity{PartitionKey: userPartition, RowKey: u.ID},
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		CreatedAt:     u.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     u.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
}

func decodeUser(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.RowKey,
		Email:        ent.Email,
		Name:         ent.Name,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, ent.UpdatedAt).UTC(),
	}, nil
}

func toTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		entity:        entity{PartitionKey: t.UserID, RowKey: t.ID},
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.TaskStatus(ent.Status),
		UserID:      ent.PartitionKey,
		CreatedAt:   time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, ent.UpdatedAt).UTC(),
	}, nil
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
