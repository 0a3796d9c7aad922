// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { builder.Close() })
	return builder
}

func TestAddAndWrite(t *testing.T) {
	builder := newTestBuilder(t)

	require.NoError(t, builder.Add("test", bytes.NewReader([]byte("idunvovkjnreovmegihjbrqlkmfrjnb"))))
	require.NoError(t, builder.Add("test2", bytes.NewReader([]byte("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"))))
	assert.Equal(t, 2, builder.Len())

	var buf bytes.Buffer
	num, err := builder.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), num)
	assert.Equal(t, Magic[:], buf.Bytes()[:MagicLength])
}

func TestAddDuplicate(t *testing.T) {
	builder := newTestBuilder(t)

	require.NoError(t, builder.Add("test", bytes.NewReader([]byte("a"))))
	err := builder.Add("test", bytes.NewReader([]byte("b")))
	assert.Equal(t, ErrDuplicate, errors.Cause(err))
	assert.Equal(t, 1, builder.Len())
}

func TestAddConcurrent(t *testing.T) {
	builder := newTestBuilder(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, builder.Add(fmt.Sprintf("file%d", i), bytes.NewReader(bytes.Repeat([]byte{byte(i)}, 1024))))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, builder.Len())
}

func TestOffsetsFollowEachOther(t *testing.T) {
	builder := newTestBuilder(t)
	require.NoError(t, builder.Add("a", bytes.NewReader(bytes.Repeat([]byte("a"), 4096))))
	require.NoError(t, builder.Add("b", bytes.NewReader([]byte("bbbb"))))

	var buf bytes.Buffer
	_, err := builder.WriteTo(&buf)
	require.NoError(t, err)

	ar, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	a, err := ar.Stat("a")
	require.NoError(t, err)
	b, err := ar.Stat("b")
	require.NoError(t, err)

	assert.Zero(t, a.Offset)
	assert.Equal(t, a.CompressedSize, b.Offset)
	assert.Equal(t, int64(4096), a.Size)
	assert.Less(t, a.CompressedSize, a.Size, "repetitive data compresses")
	assert.Equal(t, int64(buf.Len()), ar.dataOffset+b.Offset+b.CompressedSize)
}

func TestHeaderSizeEncoding(t *testing.T) {
	n, err := binaryToint64(int64ToBinary(123456789))
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), n)

	_, err = binaryToint64([]byte{1, 2})
	assert.Equal(t, ErrFileFormat, err)
}
