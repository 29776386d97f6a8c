package firebaseapp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Options selects the Firebase project the service runs against.
type Options struct {
	ProjectID       string
	CredentialsFile string
	StorageBucket   string
}

// New initializes the Firebase Admin app shared by Firestore, Storage and
// Cloud Messaging.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*firebase.App, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	} else {
		logger.Warn("no Firebase credentials file configured, using application default credentials")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     opts.ProjectID,
		StorageBucket: opts.StorageBucket,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}
