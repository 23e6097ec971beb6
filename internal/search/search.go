package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/car_rental/internal/models"
)

// UserDoc is what gets stored in the index; never credentials.
type UserDoc struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
	IsStaff  bool   `json:"is_staff"`
}

func DocFromUser(u *models.User) UserDoc {
	return UserDoc{ID: u.ID, Username: u.Username, Email: u.Email, IsActive: u.IsActive, IsStaff: u.IsStaff}
}

type Results struct {
	Total int64     `json:"total"`
	Users []UserDoc `json:"users"`
}

type UserIndex struct {
	Client *elasticsearch.Client
	Index  string
}

func (x *UserIndex) IndexUser(ctx context.Context, u *models.User) error {
	body, err := json.Marshal(DocFromUser(u))
	if err != nil {
		return err
	}

	res, err := x.Client.Index(
		x.Index,
		bytes.NewReader(body),
		x.Client.Index.WithDocumentID(strconv.FormatUint(uint64(u.ID), 10)),
		x.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("es index: %s: %s", res.Status(), b)
	}
	return nil
}

func (x *UserIndex) Search(ctx context.Context, rawQ string, from, size int) (Results, error) {
	q := strings.TrimSpace(rawQ)
	if q == "" {
		return Results{Users: []UserDoc{}}, nil
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if from < 0 {
		from = 0
	}

	query := map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    []string{"username^2", "email"},
				"fuzziness": "AUTO",
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return Results{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := x.Client.Search(
		x.Client.Search.WithContext(ctx),
		x.Client.Search.WithIndex(x.Index),
		x.Client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return Results{}, fmt.Errorf("es search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return Results{}, fmt.Errorf("es search: %s: %s", res.Status(), b)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source UserDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Results{}, fmt.Errorf("es search decode: %w", err)
	}

	out := Results{Total: parsed.Hits.Total.Value, Users: make([]UserDoc, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Users = append(out.Users, h.Source)
	}
	return out, nil
}
