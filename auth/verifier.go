package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// Rejection messages returned in the "error" field of a 401 body.
const (
	MsgMissingToken  = "No authorization header or token query parameter provided"
	MsgInvalidHeader = "Invalid authorization header format. Expected: Bearer <token>"
	MsgInvalidJWT    = "Invalid JWT format"
	MsgInvalidClaims = "Invalid token payload"
	MsgInvalidToken  = "Invalid token"
)

// tokenQueryKeys are checked in order when no Authorization header is sent.
var tokenQueryKeys = []string{"token", "auth_token", "authToken", "authorization"}

// VerifyError describes why a bearer token was rejected.
type VerifyError struct {
	Message string
	Details string
}

func (e *VerifyError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func (e *VerifyError) Unwrap() error { return ErrUnauthorized }

// TokenVerifier checks that bearer tokens carry a well-formed Respond.io
// payload. It does not verify signatures: the token is forwarded to the
// Respond.io API, which does.
type TokenVerifier struct {
	parser   *jwt.Parser
	validate *validator.Validate
	log      *slog.Logger
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithVerifierLogger sets the logger used for rejections.
func WithVerifierLogger(log *slog.Logger) VerifierOption {
	return func(v *TokenVerifier) { v.log = log }
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		parser:   jwt.NewParser(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      slog.Default(),
	}
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ Authenticator = (*TokenVerifier)(nil)

// CheckAuthentication decodes tok and validates its payload.
func (v *TokenVerifier) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	segments := strings.Split(tok, ".")
	if len(segments) != 3 {
		return nil, &VerifyError{Message: MsgInvalidJWT}
	}
	raw, err := v.parser.DecodeSegment(segments[1])
	if err != nil {
		return nil, &VerifyError{Message: MsgInvalidToken, Details: err.Error()}
	}

	var claims tokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &VerifyError{Message: MsgInvalidClaims, Details: typeErr.Field + " has the wrong type"}
		}
		return nil, &VerifyError{Message: MsgInvalidToken, Details: err.Error()}
	}
	if err := v.validate.Struct(&claims); err != nil {
		return nil, &VerifyError{Message: MsgInvalidClaims, Details: describeClaimErrors(err)}
	}

	return &Principal{
		IssuedAt: int64(*claims.IssuedAt),
		ID:       int64(*claims.ID),
		SpaceID:  int64(*claims.SpaceID),
		OrgID:    int64(*claims.OrgID),
		Type:     *claims.Type,
		raw:      raw,
	}, nil
}

func describeClaimErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" is required")
	}
	return strings.Join(msgs, "; ")
}

// Middleware authenticates every request before passing it to next. The
// principal and raw credential are attached to the request context.
func (v *TokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			header = tokenFromQuery(r)
		}
		if header == "" {
			v.reject(w, r, &VerifyError{Message: MsgMissingToken})
			return
		}
		scheme, tok, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || tok == "" || strings.Contains(tok, " ") {
			v.reject(w, r, &VerifyError{Message: MsgInvalidHeader})
			return
		}

		ui, err := v.CheckAuthentication(r.Context(), tok)
		if err != nil {
			v.reject(w, r, err)
			return
		}
		ctx := WithPrincipal(r.Context(), ui)
		ctx = WithCredential(ctx, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromQuery(r *http.Request) string {
	q := r.URL.Query()
	for _, key := range tokenQueryKeys {
		for _, val := range q[key] {
			if val == "" {
				continue
			}
			if strings.HasPrefix(val, "Bearer ") {
				return val
			}
			return "Bearer " + val
		}
	}
	return ""
}

type rejection struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (v *TokenVerifier) reject(w http.ResponseWriter, r *http.Request, err error) {
	body := rejection{Error: MsgInvalidToken, Details: err.Error()}
	var verr *VerifyError
	if errors.As(err, &verr) {
		body = rejection{Error: verr.Message, Details: verr.Details}
	}
	v.log.InfoContext(r.Context(), "auth.reject", slog.String("reason", body.Error), slog.String("path", r.URL.Path))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
