package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeActionTaxonomy(t *testing.T) {
	require.Equal(t, ActionMarkAddressFailed, ENOTFOUND.Action())
	for _, c := range []Code{ECHECKSUM, EBLOCKSIZE, ENOINIT, EINVINIT, EUNREQUESTED,
		EBATCHSIZE, EEMPTY, EBADROLLBACK, EBADROLLBACKLEN, EINVBODY, ELOWPRIORITY, ETIMEOUT} {
		require.Equal(t, ActionClosePeer, c.Action(), "%s should close the peer", c)
	}
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := Errorf(EBATCHSIZE, "got %d headers, want %d", 3, 500)
	require.Equal(t, "EBATCHSIZE: got 3 headers, want 500", err.Error())
}

func TestErrorWithoutMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: ETIMEOUT}
	require.Equal(t, "ETIMEOUT", err.Error())
}

func TestUnknownCodeStringsAsUnknown(t *testing.T) {
	require.Contains(t, Code(999).String(), "EUNKNOWN")
}
