package interfaces

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/opd-ai/securestream/crypto"
)

var _ ISecretStore = (*crypto.EncryptedKeyStore)(nil)

func newKey(t *testing.T, b byte) *crypto.SecretKey {
	t.Helper()
	k, err := crypto.NewSecretKey(bytes.Repeat([]byte{b}, crypto.SecretKeyLength))
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	return k
}

func TestStreamContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func() *StreamContext
		wantErr bool
	}{
		{
			name:    "nil context",
			ctx:     func() *StreamContext { return nil },
			wantErr: true,
		},
		{
			name:    "missing frame secret",
			ctx:     func() *StreamContext { return &StreamContext{} },
			wantErr: true,
		},
		{
			name:    "tag-less stream",
			ctx:     func() *StreamContext { return &StreamContext{FrameSecret: newKey(t, 1)} },
			wantErr: false,
		},
		{
			name: "erased tag key",
			ctx: func() *StreamContext {
				tag := newKey(t, 2)
				tag.Erase()
				return &StreamContext{FrameSecret: newKey(t, 1), TagKey: tag}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidStreamContext) {
				t.Errorf("Validate() error = %v, want ErrInvalidStreamContext", err)
			}
		})
	}
}

func TestStreamContextEraseTwice(t *testing.T) {
	ctx := &StreamContext{FrameSecret: newKey(t, 1), TagKey: newKey(t, 2)}
	ctx.Erase()
	ctx.Erase()
	if !ctx.FrameSecret.IsErased() || !ctx.TagKey.IsErased() {
		t.Fatal("keys not erased")
	}
}

func TestStaticPassword(t *testing.T) {
	pw, err := StaticPassword("hunter2").Password(context.Background(), "keystore")
	if err != nil || pw != "hunter2" {
		t.Fatalf("Password() = %q, %v", pw, err)
	}
	if _, err := StaticPassword("").Password(context.Background(), "keystore"); err == nil {
		t.Fatal("empty password accepted")
	}
}

func TestStreamContextEraseNil(t *testing.T) {
	var ctx *StreamContext
	ctx.Erase()
}
