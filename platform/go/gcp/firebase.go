package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// GetApp creates a Firebase App instance, using a service-account file when one is given.
func GetApp(ctx context.Context, credentialsFile *string) (app *firebase.App, err error) {
	if credentialsFile != nil && *credentialsFile != "" {
		app, err = firebase.NewApp(ctx, nil, option.WithCredentialsFile(*credentialsFile))
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, credentialsFile *string) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx, credentialsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}
