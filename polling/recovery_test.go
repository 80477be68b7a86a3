// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-id12la"
	simulator "github.com/ZaparooProject/go-id12la/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRecoverer_SoftReset(t *testing.T) {
	t.Parallel()
	reader, sim := newSimReader(t)
	require.NoError(t, sim.Close())

	rec := NewDefaultRecoverer(reader, nil, time.Millisecond, 3)
	require.NoError(t, rec.AttemptRecovery(context.Background()))
	assert.Same(t, reader, rec.Reader())

	require.NoError(t, sim.PresentTag(tagA))
	id, err := rec.Reader().Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id12la.TagID(tagA), id)
}

func TestDefaultRecoverer_Reopen(t *testing.T) {
	t.Parallel()
	old, _ := newSimReader(t)
	require.NoError(t, old.Close())

	var reopened *simulator.VirtualReader
	reopen := func() (*id12la.Reader, error) {
		reopened = simulator.NewVirtualReader()
		return id12la.New(reopened, reopened, id12la.WithSettleDelay(0))
	}

	rec := NewDefaultRecoverer(old, reopen, time.Millisecond, 3)
	require.NoError(t, rec.AttemptRecovery(context.Background()))

	fresh := rec.Reader()
	t.Cleanup(func() { _ = fresh.Close() })
	assert.NotSame(t, old, fresh)
	require.NotNil(t, reopened)
	assert.True(t, reopened.IsSetup())
}

func TestDefaultRecoverer_ReopenFails(t *testing.T) {
	t.Parallel()
	old, _ := newSimReader(t)
	require.NoError(t, old.Close())

	calls := 0
	errGone := errors.New("port gone")
	reopen := func() (*id12la.Reader, error) {
		calls++
		return nil, errGone
	}

	rec := NewDefaultRecoverer(old, reopen, time.Millisecond, 3)
	err := rec.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, errGone)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Same(t, old, rec.Reader())
}

func TestDefaultRecoverer_NoReopenFunc(t *testing.T) {
	t.Parallel()
	old, _ := newSimReader(t)
	require.NoError(t, old.Close())

	rec := NewDefaultRecoverer(old, nil, time.Millisecond, 2)
	err := rec.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, id12la.ErrTransportClosed)
}

func TestDefaultRecoverer_ContextCancelled(t *testing.T) {
	t.Parallel()
	old, _ := newSimReader(t)
	require.NoError(t, old.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := NewDefaultRecoverer(old, nil, time.Hour, 3)
	err := rec.AttemptRecovery(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewDefaultRecoverer_Defaults(t *testing.T) {
	t.Parallel()
	rec := NewDefaultRecoverer(nil, nil, 0, 0)
	assert.Equal(t, 3, rec.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, rec.backoff)
}
