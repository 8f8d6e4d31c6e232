package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkKeepsIdentity(t *testing.T) {
	sentinel := errors.New("no free slot")
	marked := Mark(sentinel, Transient)

	assert.ErrorIs(t, marked, sentinel)
	assert.Equal(t, Transient, Of(marked))
	assert.True(t, IsTransient(fmt.Errorf("enqueue: %w", marked)))
}

func TestDeviceErrorIsPlatformDevice(t *testing.T) {
	err := fmt.Errorf("start player: %w", &DeviceError{Op: "start", Code: -66681})

	assert.Equal(t, PlatformDevice, Of(err))
	assert.Contains(t, err.Error(), "-66681")
}

func TestUnclassified(t *testing.T) {
	assert.Equal(t, Unknown, Of(errors.New("plain")))
	assert.Equal(t, Unknown, Of(nil))
	assert.Nil(t, Mark(nil, Configuration))
}
