package keycustody

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/keycustody/client-go/internal/crypto"
)

// Step names reported in FlowError.Step.
const (
	stepConfirm          = "confirm"
	stepGenerateKey      = "generate_key"
	stepExportKey        = "export_key"
	stepSendPubKey       = "send_pub_key"
	stepDecryptChallenge = "decrypt_challenge"
	stepSolveChallenge   = "solve_challenge"
	stepDeriveKey        = "derive_key"
	stepWrapKey          = "wrap_key"
	stepSendWrappedKey   = "send_wrapped_key"
	stepUnwrapKey        = "unwrap_key"
	stepValidateID       = "validate_identifier"
	stepGetPublicKey     = "get_public_key"
	stepImportKey        = "import_key"
)

var errNoPendingKey = errors.New("challenge pending for a key this agent does not hold")

// Enroll places a private key under the custody of the KMS. conf must carry
// TaskSendPubKey, or TaskSolveChallenge when an earlier enrollment with the
// key set by WithKeyPair stopped after the public key was accepted.
//
// The returned key is the one now held by the KMS.
func (s *Session) Enroll(ctx context.Context, conf *Confirmation, password string) (*rsa.PrivateKey, error) {
	if err := s.begin(flowEnroll); err != nil {
		return nil, err
	}
	defer s.end()

	if conf == nil {
		return nil, s.fail(ProtocolViolation, stepConfirm, fmt.Errorf("no confirmation"))
	}
	if err := conf.Validate(); err != nil {
		return nil, s.fail(ProtocolViolation, stepConfirm, err)
	}
	return s.enroll(ctx, conf, password)
}

// enroll runs the enroll flow from Start or RequestSent.
func (s *Session) enroll(ctx context.Context, conf *Confirmation, password string) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	s.flow = flowEnroll
	s.mu.Unlock()

	kp, err := s.enrollKeyPair(conf)
	if err != nil {
		return nil, err
	}
	if err := s.step(StateKeyGenerated, stepGenerateKey); err != nil {
		return nil, err
	}

	kms := s.client.apiClient
	token := conf.AccessToken
	challenge := conf.Challenge

	if conf.Task == TaskSendPubKey {
		exported, err := crypto.ExportPublicKey(kp)
		if err != nil {
			return nil, s.fail(cryptoKind(err), stepExportKey, err)
		}
		resp, err := kms.SendPublicKey(ctx, token, exported)
		if err != nil {
			return nil, s.fail(transportKind(err), stepSendPubKey, err)
		}
		if err := s.step(StatePubKeySent, stepSendPubKey); err != nil {
			return nil, err
		}
		challenge = resp.Challenge
	}
	if err := s.step(StateChallengeReceived, stepSendPubKey); err != nil {
		return nil, err
	}

	proof, err := crypto.SolveChallenge(kp.PrivateKey, challenge)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepDecryptChallenge, err)
	}
	saltResp, err := kms.SolveChallenge(ctx, token, proof)
	if err != nil {
		return nil, s.fail(transportKind(err), stepSolveChallenge, err)
	}
	if err := s.step(StateChallengeSolved, stepSolveChallenge); err != nil {
		return nil, err
	}

	wk, err := crypto.DeriveWrappingKey(s.client.secret, password, saltResp.Salt)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepDeriveKey, err)
	}
	s.setWrappingKey(wk)

	env, err := crypto.Wrap(wk, kp.PrivateKey)
	if err != nil {
		return nil, s.fail(cryptoKind(err), stepWrapKey, err)
	}
	if err := s.step(StateEnvelopeWrapped, stepWrapKey); err != nil {
		return nil, err
	}

	if _, err := kms.SendWrappedKey(ctx, token, env.String()); err != nil {
		return nil, s.fail(transportKind(err), stepSendWrappedKey, err)
	}
	if err := s.step(StateEnvelopeSent, stepSendWrappedKey); err != nil {
		return nil, err
	}
	if err := s.step(StateDone, stepSendWrappedKey); err != nil {
		return nil, err
	}

	s.logger.Info("key enrolled", "resumed", conf.Task == TaskSolveChallenge)
	return kp.PrivateKey, nil
}

// enrollKeyPair returns the key pair to enroll. A pending challenge can only
// be solved with the configured key.
func (s *Session) enrollKeyPair(conf *Confirmation) (*crypto.KeyPair, error) {
	if conf.Task != TaskSendPubKey && conf.Task != TaskSolveChallenge {
		return nil, s.fail(ProtocolViolation, stepConfirm, fmt.Errorf("task %q does not start an enrollment", conf.Task))
	}

	priv := s.client.cfg.keyPair
	if priv == nil {
		if conf.Task == TaskSolveChallenge {
			return nil, s.fail(ProtocolViolation, stepGenerateKey, errNoPendingKey)
		}
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, s.fail(ExportFailure, stepGenerateKey, err)
		}
		s.keyPair = kp
		return kp, nil
	}

	kp, err := crypto.NewKeyPair(priv)
	if err != nil {
		return nil, s.fail(ExportFailure, stepGenerateKey, err)
	}
	s.keyPair = kp
	return kp, nil
}
