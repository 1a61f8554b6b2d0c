package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"triage_server/core/domain"
	portout "triage_server/core/port/out"
)

// =============================================================================
// Neo4j User Context Store Adapter
// =============================================================================

// UserContextAdapter implements out.UserContextStore using Neo4j. The user
// graph keeps interests as related Topic nodes so later features can walk
// shared-interest edges between users.
type UserContextAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

// NewUserContextAdapter creates a new Neo4j user context adapter.
func NewUserContextAdapter(driver neo4j.DriverWithContext, dbName string) *UserContextAdapter {
	return &UserContextAdapter{
		driver: driver,
		dbName: dbName,
	}
}

var _ portout.UserContextStore = (*UserContextAdapter)(nil)

// EnsureIndexes creates necessary indexes and constraints.
func (a *UserContextAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.user_id IS UNIQUE`,
		`CREATE INDEX topic_name_idx IF NOT EXISTS FOR (t:Topic) ON (t.name)`,
	}

	for _, query := range queries {
		_, err := session.Run(ctx, query, nil)
		if err != nil {
			// Ignore if already exists
			continue
		}
	}

	return nil
}

// GetContext retrieves a user's personalization context. Returns nil when the
// user has no stored context.
func (a *UserContextAdapter) GetContext(ctx context.Context, userID uuid.UUID) (*domain.UserContext, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {user_id: $userID})
		OPTIONAL MATCH (u)-[:INTERESTED_IN]->(t:Topic)
		RETURN u.role AS role, u.preferences AS preferences,
			   collect(t.name) AS interests
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"userID": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to get user context: %w", err)
	}

	if !result.Next(ctx) {
		return nil, nil
	}
	record := result.Record()

	uc := &domain.UserContext{
		UserID: userID,
		Role:   getStringValue(record, "role"),
	}

	if raw, ok := record.Get("interests"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, item := range list {
				if name, ok := item.(string); ok && name != "" {
					uc.Interests = append(uc.Interests, name)
				}
			}
		}
	}

	// Preferences are stored as alternating key/value pairs since Neo4j
	// properties cannot hold maps.
	if raw, ok := record.Get("preferences"); ok {
		if list, ok := raw.([]interface{}); ok && len(list)%2 == 0 {
			uc.Preferences = make(map[string]string, len(list)/2)
			for i := 0; i+1 < len(list); i += 2 {
				k, kok := list[i].(string)
				v, vok := list[i+1].(string)
				if kok && vok {
					uc.Preferences[k] = v
				}
			}
		}
	}

	return uc, nil
}

// SaveContext persists the user's context, replacing interests wholesale.
func (a *UserContextAdapter) SaveContext(ctx context.Context, uc *domain.UserContext) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	prefs := make([]string, 0, len(uc.Preferences)*2)
	for k, v := range uc.Preferences {
		prefs = append(prefs, k, v)
	}

	query := `
		MERGE (u:User {user_id: $userID})
		SET u.role = $role,
			u.preferences = $preferences,
			u.updated_at = timestamp()
		WITH u
		OPTIONAL MATCH (u)-[r:INTERESTED_IN]->(:Topic)
		DELETE r
		WITH DISTINCT u
		UNWIND CASE WHEN size($interests) = 0 THEN [null] ELSE $interests END AS interest
		WITH u, interest WHERE interest IS NOT NULL
		MERGE (t:Topic {name: interest})
		MERGE (u)-[:INTERESTED_IN]->(t)
	`

	params := map[string]interface{}{
		"userID":      uc.UserID.String(),
		"role":        uc.Role,
		"preferences": prefs,
		"interests":   uc.Interests,
	}

	_, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to save user context: %w", err)
	}

	return nil
}

// getStringValue safely extracts a string field from a record.
func getStringValue(record *neo4j.Record, key string) string {
	if raw, ok := record.Get(key); ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}
