package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested from Azure AD.
var Scopes = []string{"User.Read"}

// ErrSSONotConfigured is returned when no Azure AD client id is set.
var ErrSSONotConfigured = errors.New("single sign-on is not configured (set AZURE_AD_CLIENT_ID)")

// DeviceConfig returns the OAuth2 configuration for the Azure AD device-code
// flow of tenantID ("common" when empty).
func DeviceConfig(clientID, tenantID string) *oauth2.Config {
	if tenantID == "" {
		tenantID = "common"
	}
	ep := microsoft.AzureADEndpoint(tenantID)
	ep.DeviceAuthURL = "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/devicecode"
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: ep,
		Scopes:   Scopes,
	}
}

// DeviceLogin runs the device-code flow. prompt is shown the code and the
// verification URL; the call blocks until the user finished signing in, the
// code expired or ctx ended.
func DeviceLogin(ctx context.Context, cfg *oauth2.Config, prompt func(*oauth2.DeviceAuthResponse)) (*Credentials, error) {
	if cfg == nil || cfg.ClientID == "" {
		return nil, ErrSSONotConfigured
	}
	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting device login: %w", err)
	}
	prompt(da)

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("completing device login: %w", err)
	}

	c := &Credentials{Token: tok.AccessToken, Source: "sso"}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		c.ExpiresAt = &exp
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		c.Email = tokenEmail(id)
	}
	if c.Email == "" {
		c.Email = tokenEmail(tok.AccessToken)
	}
	return c, nil
}
