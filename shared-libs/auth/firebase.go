package auth

import (
	"context"
	"encoding/base64"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// firebaseVerifier validates Firebase Authentication ID tokens, the identity
// produced by the web client's Google sign-in.
type firebaseVerifier struct {
	client idTokenVerifier
}

func newFirebaseVerifier(ctx context.Context, cfg Config) (Verifier, error) {
	var opts []option.ClientOption
	switch {
	case cfg.FirebaseCredentialsJSON != "":
		decoded, err := base64.StdEncoding.DecodeString(cfg.FirebaseCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode firebase credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	case cfg.FirebaseCredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}

	var appCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) Verify(ctx context.Context, token string) (AuthenticatedUser, error) {
	tok, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return AuthenticatedUser{}, fmt.Errorf("token verification failed: %w", err)
	}
	if tok.UID == "" {
		return AuthenticatedUser{}, errMissingSubject
	}

	name, _ := tok.Claims["name"].(string)
	email, _ := tok.Claims["email"].(string)
	picture, _ := tok.Claims["picture"].(string)

	return AuthenticatedUser{
		UserID:    tok.UID,
		ExpiresAt: tok.Expires,
		Token:     token,
		Name:      name,
		Email:     email,
		Picture:   picture,
	}, nil
}
