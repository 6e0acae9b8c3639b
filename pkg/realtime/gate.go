package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/savanahq/savana/pkg/auth"
	"github.com/savanahq/savana/pkg/observability"
	"github.com/savanahq/savana/pkg/storage"
)

var (
	// ErrInvalidTarget means the room identifier was malformed or did not
	// resolve to a project; the handshake must be refused.
	ErrInvalidTarget = errors.New("realtime: invalid room target")

	// ErrUnauthenticated means the credential was missing, revoked, or
	// failed verification; the handshake must be refused.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")
)

// CredentialVerifier validates bearer tokens. Revocation is a separate
// lookup consulted before signature verification.
type CredentialVerifier interface {
	Verify(token string) (*auth.Claims, error)
	IsRevoked(token string) bool
}

// ProjectResolver looks up the project backing a room target.
// A nil project with nil error means the project does not exist.
type ProjectResolver interface {
	Resolve(ctx context.Context, projectID string) (*storage.Project, error)
}

// ResolverFunc adapts a function to the ProjectResolver interface.
type ResolverFunc func(ctx context.Context, projectID string) (*storage.Project, error)

func (f ResolverFunc) Resolve(ctx context.Context, projectID string) (*storage.Project, error) {
	return f(ctx, projectID)
}

// Gate decides, at channel-open time, whether a connecting client may join a
// room. It is a pure decision function: joining the room is the registry's
// job, so the gate is testable without any live membership state.
type Gate struct {
	verifier CredentialVerifier
	resolver ProjectResolver
	logger   *observability.Logger
}

// NewGate builds a session gate over the given verifier and resolver.
func NewGate(verifier CredentialVerifier, resolver ProjectResolver, logger *observability.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		resolver: resolver,
		logger:   logger,
	}
}

// Admit validates the credential and room target and returns a fully
// populated session, or ErrInvalidTarget / ErrUnauthenticated. Any error
// means no session exists and the handshake must not complete.
func (g *Gate) Admit(ctx context.Context, credential, roomTargetID string) (*Session, error) {
	ctx, span := observability.StartSpan(ctx, "gate.admit",
		trace.WithAttributes(observability.AttrRoomID.String(roomTargetID)),
	)
	defer span.End()

	if !storage.ValidProjectID(roomTargetID) {
		return nil, g.reject(ctx, ErrInvalidTarget, "malformed_target")
	}

	project, err := g.resolver.Resolve(ctx, roomTargetID)
	if err != nil || project == nil {
		// A session bound to a non-existent room would be unusable; refuse
		// the handshake rather than admit it.
		return nil, g.reject(ctx, ErrInvalidTarget, "unresolved_target")
	}

	if credential == "" {
		return nil, g.reject(ctx, ErrUnauthenticated, "missing_credential")
	}
	if g.verifier.IsRevoked(credential) {
		return nil, g.reject(ctx, ErrUnauthenticated, "revoked_credential")
	}
	claims, err := g.verifier.Verify(credential)
	if err != nil {
		return nil, g.reject(ctx, ErrUnauthenticated, "invalid_credential")
	}

	session := &Session{
		ChannelID: ulid.Make().String(),
		Identity: Identity{
			ID:    claims.UserID,
			Email: claims.Email,
		},
		RoomID:      project.ID,
		ConnectedAt: time.Now(),
	}

	if g.logger != nil {
		g.logger.ChannelAdmitted(session.ChannelID, session.RoomID, session.Identity.Email)
	}
	return session, nil
}

func (g *Gate) reject(ctx context.Context, err error, reason string) error {
	observability.AdmissionsRejected.WithLabelValues(reason).Inc()
	observability.RecordError(ctx, err)
	if g.logger != nil {
		g.logger.Debug("handshake refused", "reason", reason)
	}
	return err
}
