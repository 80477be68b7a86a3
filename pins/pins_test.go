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

package pins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// failingPin is an output that cannot be driven
type failingPin struct {
	gpiotest.Pin
}

func (*failingPin) Out(gpio.Level) error {
	return errors.New("pin busy")
}

func newTestLines(t *testing.T, withEdges bool) (*Lines, *gpiotest.Pin, *gpiotest.Pin) {
	t.Helper()
	reset := &gpiotest.Pin{N: "GPIO17", Num: 17}
	tir := &gpiotest.Pin{N: "GPIO27", Num: 27}
	if withEdges {
		tir.EdgesChan = make(chan gpio.Level, 1)
	}
	lines, err := NewFromPins(reset, tir)
	require.NoError(t, err)
	require.NoError(t, lines.Setup())
	return lines, reset, tir
}

func TestNewFromPins_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewFromPins(nil, &gpiotest.Pin{N: "GPIO27"})
	require.ErrorIs(t, err, id12la.ErrInvalidParameter)
	_, err = NewFromPins(&gpiotest.Pin{N: "GPIO17"}, nil)
	require.ErrorIs(t, err, id12la.ErrInvalidParameter)
}

func TestSetup(t *testing.T) {
	t.Parallel()

	t.Run("with edge detection", func(t *testing.T) {
		t.Parallel()
		lines, reset, _ := newTestLines(t, true)
		assert.True(t, lines.hasEdges())
		assert.Equal(t, gpio.Low, reset.Read())
	})

	t.Run("falls back to polling", func(t *testing.T) {
		t.Parallel()
		lines, _, _ := newTestLines(t, false)
		assert.False(t, lines.hasEdges())
	})

	t.Run("reset pin failure", func(t *testing.T) {
		t.Parallel()
		lines, err := NewFromPins(&failingPin{Pin: gpiotest.Pin{N: "GPIO17"}}, &gpiotest.Pin{N: "GPIO27"})
		require.NoError(t, err)
		err = lines.Setup()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GPIO17")
	})
}

func TestSetReset(t *testing.T) {
	t.Parallel()
	lines, reset, _ := newTestLines(t, false)

	require.NoError(t, lines.SetReset(id12la.High))
	assert.Equal(t, gpio.High, reset.Read())
	require.NoError(t, lines.SetReset(id12la.Low))
	assert.Equal(t, gpio.Low, reset.Read())
}

func TestTagInRange(t *testing.T) {
	t.Parallel()

	unset, err := NewFromPins(&gpiotest.Pin{N: "GPIO17"}, &gpiotest.Pin{N: "GPIO27"})
	require.NoError(t, err)
	_, err = unset.TagInRange()
	require.ErrorIs(t, err, id12la.ErrNotInitialized)

	lines, _, tir := newTestLines(t, false)
	present, err := lines.TagInRange()
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, tir.Out(gpio.High))
	present, err = lines.TagInRange()
	require.NoError(t, err)
	assert.True(t, present)
}

func TestWaitForTag_Edge(t *testing.T) {
	t.Parallel()
	lines, reset, tir := newTestLines(t, true)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tir.Out(gpio.High)
		tir.EdgesChan <- gpio.High
	}()

	found, err := lines.WaitForTag(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, gpio.Low, reset.Read(), "reset restored after wait")
}

func TestWaitForTag_Polling(t *testing.T) {
	t.Parallel()
	lines, _, tir := newTestLines(t, false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tir.Out(gpio.High)
	}()

	found, err := lines.WaitForTag(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWaitForTag_Timeout(t *testing.T) {
	t.Parallel()
	lines, reset, _ := newTestLines(t, false)

	start := time.Now()
	found, err := lines.WaitForTag(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, found)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, gpio.Low, reset.Read())
}

func TestWaitForTag_ContextCancelled(t *testing.T) {
	t.Parallel()
	lines, reset, _ := newTestLines(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	found, err := lines.WaitForTag(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, found)
	assert.Equal(t, gpio.Low, reset.Read())
}

func TestClose(t *testing.T) {
	t.Parallel()
	lines, reset, _ := newTestLines(t, false)
	require.NoError(t, lines.SetReset(id12la.High))

	require.NoError(t, lines.Close())
	assert.Equal(t, gpio.Low, reset.Read())

	_, err := lines.TagInRange()
	require.ErrorIs(t, err, id12la.ErrNotInitialized)
}

// TestReader_OverGPIO drives a read cycle through real pin logic with
// a mock serial channel.
func TestReader_OverGPIO(t *testing.T) {
	t.Parallel()
	lines, reset, tir := newTestLines(t, false)
	transport := id12la.NewMockTransport()

	reader, err := id12la.New(transport, lines, id12la.WithSettleDelay(0))
	require.NoError(t, err)
	require.NoError(t, reader.Init())

	_, err = reader.Read(context.Background())
	assert.Equal(t, id12la.KindNoTag, id12la.KindOf(err))
	assert.Equal(t, gpio.Low, reset.Read())

	require.NoError(t, tir.Out(gpio.High))
	transport.Feed(0x02, '6', 'A', '0', '0', '3', 'E', '4', 'B', '1', 'C', '0', '3', 0x0D, 0x0A, 0x03, 0x00)
	tag, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id12la.TagID("6A003E4B1C"), tag)
	assert.Equal(t, gpio.Low, reset.Read())
}
