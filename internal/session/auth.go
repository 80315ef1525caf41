package session

import (
	"context"

	"main/internal/errors"
	"main/internal/wire"
)

// AuthenticateApp performs the application-level handshake. The venue does
// not echo correlation tokens on auth responses, so both auth calls run on
// the legacy type-only correlation path.
func (s *Session) AuthenticateApp(ctx context.Context, clientID, clientSecret string) error {
	req := wire.AppAuthReq{ClientID: clientID, ClientSecret: clientSecret}
	if _, err := s.RequestLegacy(ctx, wire.PTAppAuthReq, req.Encode(nil), wire.PTAppAuthRes); err != nil {
		return errors.Wrap(err, "app auth")
	}
	s.conn.setAppAuthed()
	return nil
}

// AuthenticateAccount performs the account-level handshake. Must follow a
// successful AuthenticateApp on the same connection.
func (s *Session) AuthenticateAccount(ctx context.Context, accountID int64, accessToken string) error {
	req := wire.AccountAuthReq{AccountID: accountID, AccessToken: accessToken}
	payload, err := s.RequestLegacy(ctx, wire.PTAccountAuthReq, req.Encode(nil), wire.PTAccountAuthRes)
	if err != nil {
		return errors.Wrap(err, "account auth")
	}

	res, err := wire.DecodeAccountAuthRes(payload)
	if err != nil {
		return errors.Wrap(err, "decode account auth response")
	}
	if res.AccountID != 0 && res.AccountID != accountID {
		return errors.New("account auth response for a different account")
	}
	s.conn.setAccountAuthed(accountID)
	return nil
}
