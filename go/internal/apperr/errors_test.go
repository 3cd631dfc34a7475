package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("failed to place bid: %w", Conflict("bid of %s already exceeded", "100"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, IsKind(err, KindConflict))
	assert.True(t, errors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code connect.Code
		http int
	}{
		{Validation("bad"), connect.CodeInvalidArgument, http.StatusBadRequest},
		{Conflict("stale"), connect.CodeAborted, http.StatusConflict},
		{NotFound("missing"), connect.CodeNotFound, http.StatusNotFound},
		{State("not current"), connect.CodeFailedPrecondition, http.StatusBadRequest},
		{Auth("no token"), connect.CodeUnauthenticated, http.StatusUnauthorized},
		{Forbidden("admin only"), connect.CodePermissionDenied, http.StatusForbidden},
		{Transient(errors.New("down"), "store"), connect.CodeUnavailable, http.StatusServiceUnavailable},
		{errors.New("other"), connect.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ConnectCode(tc.err), tc.err.Error())
		assert.Equal(t, tc.http, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestToConnectKeepsExistingConnectError(t *testing.T) {
	orig := connect.NewError(connect.CodeResourceExhausted, errors.New("slow down"))
	assert.Same(t, orig, ToConnect(orig))
	assert.Nil(t, ToConnect(nil))
	assert.Equal(t, connect.CodeAborted, connect.CodeOf(ToConnect(Conflict("x"))))
}
