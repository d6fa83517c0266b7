// The stream reader allows iterative reading of values from a TDMS file for a
// particular channel.
//
// It uses batching to speed up reads, with functions that return either the
// batches as slices or the individual values. The stream reader that returns
// individual values still uses batching internally, it just helpfully unwraps
// the slice for you.

package tdms

import (
	"encoding/binary"
	"errors"
	"io"
	"iter"
)

type interpreter[T any] func([]byte, binary.ByteOrder) T

// StreamReader still internally uses batching, hence the batch size param,
// however it returns the results as individual values, which may be more
// useful in many scenarios.
func StreamReader[T any](
	ch *Channel,
	options []ReadOption,
	dataType DataType,
	interpret interpreter[T],
) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for batch, err := range BatchStreamReader(ch, options, dataType, interpret) {
			if err != nil {
				yield(*new(T), err)
				return
			}

			for _, datum := range batch {
				if !yield(datum, nil) {
					return
				}
			}
		}
	}
}

// Be aware that this re-uses the same batch during the lifetime of the
// iterator. If you want to collect all the data from the BatchStreamReader,
// you need to copy the data into your own buffer.
func BatchStreamReader[T any](
	ch *Channel,
	options []ReadOption,
	dataType DataType,
	interpret interpreter[T],
) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		opts := readOptions{}
		for _, opt := range options {
			opt(&opts)
		}

		if opts.batchSize == 0 {
			opts.batchSize = 2056
			if dataType == DataTypeString {
				// Strings are generally much larger than individual ints or
				// floats, so we use a much smaller default batch size.
				opts.batchSize = 256
			}
		}

		// If we have fewer data points in total than a single batch size, we
		// can allocate only what we need.
		batchSize := min(opts.batchSize, int(ch.totalNumValues))
		dataSize, fixedWidth := dataType.fixedWidth()

		var buf []byte
		if fixedWidth {
			buf = make([]byte, batchSize*dataSize)
		}
		batch := make([]T, batchSize)
		r := ch.f.data

		for _, chunk := range ch.dataChunks {
			if _, err := r.Seek(chunk.offset, io.SeekStart); err != nil {
				yield(nil, err)
				return
			}

			bytesRead := uint64(0)

			// Special case for strings, where the indices into the strings
			// are stored at the beginning of the chunk.
			strOffsets := []uint32{0}
			if dataType == DataTypeString {
				strOffsetsBytes := make([]byte, chunk.numValues*4)
				n, err := io.ReadFull(r, strOffsetsBytes)
				bytesRead += uint64(n)
				if err != nil {
					yield(nil, err)
					return
				}

				for i := range chunk.numValues {
					strOffsets = append(strOffsets, chunk.order.Uint32(strOffsetsBytes[i*4:]))
				}
			}

			// For strings, we need to keep track of the current index that
			// we're processing so that we can get the offset for that value.
			valuesProcessed := 0

			for {
				// We don't want to read past the end of the chunk.
				if bytesRead >= chunk.size {
					break
				}
				bytesLeft := chunk.size - bytesRead

				var bufLen uint64
				if dataType == DataTypeString {
					numValuesLeft := int(chunk.numValues) - valuesProcessed
					requiredNumValues := min(batchSize, numValuesLeft)

					var requiredBufLen uint32
					for i := valuesProcessed; i < valuesProcessed+requiredNumValues; i++ {
						requiredBufLen += strOffsets[i+1] - strOffsets[i]
					}

					bufLen = uint64(requiredBufLen)
					if cap(buf) < int(requiredBufLen) {
						buf = make([]byte, requiredBufLen)
					} else {
						buf = buf[:requiredBufLen]
					}
				} else {
					bufLen = uint64(len(buf))
				}

				if bufLen > bytesLeft {
					buf = buf[:bytesLeft]
				} else {
					buf = buf[:bufLen]
				}

				if len(buf) == 0 {
					break
				}

				var n int
				var err error
				if !chunk.isInterleaved {
					n, err = io.ReadFull(r, buf)
				} else {
					// Interleaved data chunks cannot contain variable-length
					// data types.
					if !fixedWidth {
						yield(nil, malformedf(chunk.offset, "interleaved data chunks cannot contain variable-length data types"))
						return
					}

					for i := 0; i < len(buf); i += dataSize {
						if i > 0 {
							if _, err := r.Seek(chunk.stride, io.SeekCurrent); err != nil {
								yield(nil, err)
								return
							}
						}

						readLen, rerr := io.ReadFull(r, buf[i:i+dataSize])
						n += readLen
						if rerr != nil {
							err = rerr
							break
						}
					}
				}

				bytesRead += uint64(n)

				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				if err != nil {
					yield(nil, err)
					return
				}

				numValuesRead := min(batchSize, int(chunk.numValues)-valuesProcessed)

				for i := range numValuesRead {
					var startIdx, endIdx int
					if dataType == DataTypeString {
						startIdx = int(strOffsets[valuesProcessed+i])
						endIdx = int(strOffsets[valuesProcessed+i+1])
					} else {
						startIdx = i * dataSize
						endIdx = (i + 1) * dataSize
					}

					batch[i] = interpret(buf[startIdx:endIdx], chunk.order)
				}

				valuesProcessed += numValuesRead

				if !yield(batch[:numValuesRead], nil) {
					return
				}
			}
		}
	}
}

// readAllData reads all data from a channel and puts it into a single slice.
//
// By re-using BatchStreamReader here, we avoid having to allocate 2*N bytes
// — one for the raw bytes and one for the interpreted values. The raw bytes
// are still batched while we allocate the values slice up-front.
func readAllData[T any](ch *Channel, options []ReadOption, dataType DataType, interpret interpreter[T]) ([]T, error) {
	values := make([]T, 0, ch.totalNumValues)

	for batch, err := range BatchStreamReader(ch, options, dataType, interpret) {
		if err != nil {
			return nil, err
		}

		values = append(values, batch...)
	}

	return values, nil
}
