package keycustody

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/keycustody/client-go/internal/api"
	"github.com/keycustody/client-go/internal/crypto"
)

// GetPrivateKey recovers the private key of username. It waits for the
// confirmation of the out-of-band login, then either unwraps the envelope
// held by the KMS or, for an account without one, enrolls a new key.
func (s *Session) GetPrivateKey(ctx context.Context, username, password string) (*rsa.PrivateKey, error) {
	if err := s.begin(flowRetrieve); err != nil {
		return nil, err
	}
	defer s.end()

	if username != "" && !usernamePattern.MatchString(username) {
		return nil, s.fail(InvalidRequest, stepValidateID, ErrInvalidIdentifier)
	}
	if err := s.step(StateRequestSent, stepConfirm); err != nil {
		return nil, err
	}

	conf, err := s.client.confirmationSource(username).Await(ctx)
	if err != nil {
		return nil, s.fail(transportKind(err), stepConfirm, err)
	}
	if conf == nil {
		return nil, s.fail(ProtocolViolation, stepConfirm, fmt.Errorf("no confirmation"))
	}
	if err := conf.Validate(); err != nil {
		return nil, s.fail(ProtocolViolation, stepConfirm, err)
	}

	switch conf.Task {
	case TaskUnwrap:
		return s.unwrap(conf, password)
	case TaskSendPubKey, TaskSolveChallenge:
		s.logger.Info("no key under custody, enrolling")
		return s.enroll(ctx, conf, password)
	}
	return nil, s.fail(ProtocolViolation, stepConfirm, fmt.Errorf("task %q", conf.Task))
}

func (s *Session) unwrap(conf *Confirmation, password string) (*rsa.PrivateKey, error) {
	if err := s.step(StateEnvelopeReceived, stepConfirm); err != nil {
		return nil, err
	}

	wk, err := crypto.DeriveWrappingKey(s.client.secret, password, conf.Salt)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepDeriveKey, err)
	}
	s.setWrappingKey(wk)

	priv, err := crypto.Unwrap(wk, conf.WrappedKey)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepUnwrapKey, err)
	}
	if err := s.step(StateUnwrapped, stepUnwrapKey); err != nil {
		return nil, err
	}
	if err := s.step(StateDone, stepUnwrapKey); err != nil {
		return nil, err
	}

	s.logger.Info("key retrieved")
	return priv, nil
}

// GetPublicKey looks up a public key by key name identifier or, when the key
// id is missing or malformed, by account. The identifier is checked before
// any request.
func (s *Session) GetPublicKey(ctx context.Context, id Identifier) (*PublicKey, error) {
	if err := s.begin(flowPubKey); err != nil {
		return nil, err
	}
	defer s.end()

	keyNameID, username, err := id.resolve()
	if err != nil {
		return nil, s.fail(InvalidRequest, stepValidateID, err)
	}
	if err := s.step(StateRequestSent, stepGetPublicKey); err != nil {
		return nil, err
	}

	kms := s.client.apiClient
	var resp *api.PublicKeyResponse
	if keyNameID != "" {
		resp, err = kms.GetPublicKeyByID(ctx, keyNameID)
	} else {
		resp, err = kms.GetPublicKeyByUsername(ctx, username)
	}
	if err != nil {
		return nil, s.fail(transportKind(err), stepGetPublicKey, err)
	}

	pub, err := crypto.ImportPublicKey(resp.PubKey)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepImportKey, err)
	}
	if err := s.step(StatePubKeyReceived, stepImportKey); err != nil {
		return nil, err
	}
	if err := s.step(StateDone, stepImportKey); err != nil {
		return nil, err
	}

	return &PublicKey{Key: pub, KeyNameID: resp.KeyNameID}, nil
}
