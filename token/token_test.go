// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumeSuppressesLeakPanic(t *testing.T) {
	g := New("TestToken")
	require.Equal(t, "TestToken", g.Kind())
	g.Consume()
}

func TestConsumeTwicePanics(t *testing.T) {
	g := New("TestToken")
	g.Consume()
	require.Panics(t, func() { g.Consume() })
}

func TestCancellationGuardRunsOnCancelUnlessInactivated(t *testing.T) {
	ran := false
	func() {
		guard := NewCancellationGuard(func() { ran = true })
		defer guard.Cancel()
	}()
	require.True(t, ran)

	ran = false
	func() {
		guard := NewCancellationGuard(func() { ran = true })
		defer guard.Cancel()
		guard.Inactivate()
	}()
	require.False(t, ran)
}
