//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "credtrust/pkg/platform/audit"
	"credtrust/pkg/platform/audit/store/postgres"
	"credtrust/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresAuditSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background(), "audit_events"))
}

func (s *PostgresAuditSuite) TestAppendAndListBySubject() {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	issued := audit.Event{
		ID:           uuid.New(),
		Timestamp:    base,
		SubjectID:    "learner-1",
		CredentialID: "C-1",
		Action:       string(audit.EventCredentialIssued),
		ActorID:      "state-board",
	}
	verified := audit.Event{
		ID:           uuid.New(),
		Timestamp:    base.Add(time.Minute),
		SubjectID:    "learner-1",
		CredentialID: "C-1",
		Action:       string(audit.EventCredentialVerified),
		Decision:     "verified",
	}
	other := audit.Event{ID: uuid.New(), Timestamp: base, SubjectID: "learner-2", Action: string(audit.EventCredentialIssued)}

	for _, e := range []audit.Event{verified, issued, other} {
		s.Require().NoError(s.store.Append(ctx, e))
	}
	s.Require().NoError(s.store.Append(ctx, issued), "re-append is idempotent")

	events, err := s.store.ListBySubject(ctx, "learner-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventCredentialIssued), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal("verified", events[1].Decision)

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(verified.ID, recent[0].ID)
}
