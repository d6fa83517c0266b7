package tdms

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"
)

// WriteSegment flushes everything appended since the last call as either a
// brand new segment, an in-place extension of the previous segment's raw
// data (when nothing about the object list or properties has changed and
// every previously-written channel was appended to again with the same
// non-interleaved, fixed-width layout), or a no-op if nothing is pending
// and no object or property has changed.
//
// A new segment is written crash-safely: its lead-in is written first with
// the next-segment-offset field set to the INCOMPLETE sentinel, the
// segment body follows, and only then is the lead-in patched in place with
// the real offset. A reader opening the file between those two writes sees
// a well-formed, if incomplete, file (see ReaderOptions.Strict).
func (w *Writer) WriteSegment() error {
	anyDirty := false
	for _, obj := range w.objects {
		if obj.dirty || obj.isNew {
			anyDirty = true
			break
		}
	}

	anyPending := false
	for _, ch := range w.channels {
		if ch.pendingNumValues > 0 {
			anyPending = true
			break
		}
	}

	if !anyDirty && !anyPending {
		return nil
	}

	if !anyDirty && w.committed != nil && w.rawAppendEligible() {
		return w.appendRawDataOnly()
	}

	if w.committed != nil && anyDirty && w.rawAppendEligible() {
		w.opts.logger().Warn("writing a full segment instead of a raw-append because a property or object changed; its metadata will still be compact if the active channel set didn't")
	}

	return w.writeFullSegment()
}

// rawAppendEligible reports whether the currently pending data can be
// appended onto the previous segment in place as one or more additional
// chunks, rather than requiring a new segment: every channel the previous
// segment carried data for has been appended to again with an exact whole
// multiple of that segment's per-chunk value count, no channel outside
// that set has new data, and the layout involves neither interleaving nor
// variable-width types (both would require re-deriving per-chunk byte
// geometry rather than a flat append).
func (w *Writer) rawAppendEligible() bool {
	if w.opts.Interleaved {
		return false
	}

	committedSet := make(map[string]bool, len(w.committed.channelOrder))
	for _, path := range w.committed.channelOrder {
		committedSet[path] = true
	}

	var chunks uint64
	chunksSet := false

	for path, ch := range w.channels {
		touched := ch.pendingNumValues > 0
		if touched != committedSet[path] {
			return false
		}
		if !touched {
			continue
		}
		if ch.dataType == DataTypeString || ch.dataType == DataTypeDAQmxRawData {
			return false
		}

		perChunk := w.committed.chunkNumValues[path]
		if perChunk == 0 || ch.pendingNumValues%perChunk != 0 {
			return false
		}
		k := ch.pendingNumValues / perChunk
		if chunksSet && k != chunks {
			return false
		}
		chunks, chunksSet = k, true
	}

	return chunksSet
}

// appendRawDataOnly appends the pending raw data directly after the
// previous segment's data as one or more additional chunks of the same
// shape, and patches that segment's lead-in (in both the data and, if
// present, index files) to extend its next-segment-offset in place. No new
// lead-in or metadata block is written.
//
// A segment's successive chunks are interleaved at the chunk granularity
// even outside interleaved mode: chunk i of every object sits chunkSize
// bytes after chunk i-1 of that same object, which physically means
// [obj1 chunk0][obj2 chunk0][obj1 chunk1][obj2 chunk1]... — so appending
// more than one chunk here has to walk chunk-by-chunk across channels,
// not write each channel's whole pending buffer contiguously.
func (w *Writer) appendRawDataOnly() error {
	firstPath := w.committed.channelOrder[0]
	chunks := w.channels[firstPath].pendingNumValues / w.committed.chunkNumValues[firstPath]

	chunkBytes := make(map[string]int, len(w.committed.channelOrder))
	for _, path := range w.committed.channelOrder {
		ch := w.channels[path]
		width, _ := ch.dataType.fixedWidth()
		chunkBytes[path] = width * int(w.committed.chunkNumValues[path])
	}

	var body bytes.Buffer
	for i := range chunks {
		for _, path := range w.committed.channelOrder {
			ch := w.channels[path]
			n := chunkBytes[path]
			start := int(i) * n
			body.Write(ch.pending.Bytes()[start : start+n])
		}
	}

	if _, err := w.data.Write(body.Bytes()); err != nil {
		return ioErrorf(-1, err, "failed to append raw data")
	}

	w.committed.nextSegmentOffset += uint64(body.Len())
	if err := patchUint64(w.data, w.committed.leadInOffset+12, w.order, w.committed.nextSegmentOffset); err != nil {
		return err
	}
	if w.index != nil {
		// Mirrored for the same reason writeFullSegment mirrors it: the
		// index file's own bytes don't grow, but its lead-in value must
		// still track the data file's so OpenIndexed sees every chunk.
		if err := patchUint64(w.index, w.committed.indexLeadInOffset+12, w.order, w.committed.nextSegmentOffset); err != nil {
			return err
		}
	}

	w.opts.logger().Debug("appended raw data onto committed segment",
		zap.Int64("leadInOffset", w.committed.leadInOffset),
		zap.Int("chunks", int(chunks)),
		zap.Int("bytes", body.Len()),
	)

	w.resetPending()
	return nil
}

// writeFullSegment writes a whole new segment: the object list (every live
// root/group/channel object) followed by raw data for whichever channels
// were appended to since the last call.
//
// When the active set of data-carrying channels hasn't changed since the
// previous segment, the object list is declared unchanged (NewObjectList
// left unset) and each object is encoded minimally: a property count of 0
// when nothing about it changed, and the rawIndexHeaderMatchesPreviousValue
// sentinel in place of a fresh 20-byte raw data index for any channel whose
// per-chunk layout hasn't changed either. Every channel's raw data bytes
// are still written in full regardless — the compaction only applies to
// the metadata describing them.
func (w *Writer) writeFullSegment() error {
	order := make([]string, 0, len(w.objects))
	if _, ok := w.objects["/"]; ok {
		order = append(order, "/")
	}
	for _, g := range w.groupOrder {
		order = append(order, encodePath(g, ""))
	}
	order = append(order, w.channelOrder...)

	var channelsWithData []string
	var numValuesInChunk uint64
	chunkValuesSet := false

	for _, path := range order {
		ch, isChannel := w.channels[path]
		if !isChannel || ch.pendingNumValues == 0 {
			continue
		}

		if w.opts.Interleaved {
			if chunkValuesSet && ch.pendingNumValues != numValuesInChunk {
				return invariantf("interleaved segment requires every channel to carry the same number of values").WithPath(path)
			}
			numValuesInChunk = ch.pendingNumValues
			chunkValuesSet = true
		}

		channelsWithData = append(channelsWithData, path)
	}

	newObjectList := w.committed == nil || !slices.Equal(channelsWithData, w.committed.channelOrder)

	var metadata bytes.Buffer
	if err := writeUint32(&metadata, w.order, uint32(len(order))); err != nil {
		return ioErrorf(-1, err, "failed to write object count")
	}

	var rawData bytes.Buffer

	for _, path := range order {
		obj := w.getObject(path)
		ch, isChannel := w.channels[path]
		hasData := isChannel && ch.pendingNumValues > 0

		if err := writeString(&metadata, w.order, path); err != nil {
			return ioErrorf(-1, err, "failed to write object path").WithPath(path)
		}

		switch {
		case !hasData:
			if err := writeUint32(&metadata, w.order, rawIndexHeaderNoRawData); err != nil {
				return ioErrorf(-1, err, "failed to write raw data index header").WithPath(path)
			}
		case !newObjectList &&
			ch.dataType != DataTypeString && ch.dataType != DataTypeDAQmxRawData &&
			w.committed.chunkNumValues[path] == ch.pendingNumValues:
			if err := writeUint32(&metadata, w.order, rawIndexHeaderMatchesPreviousValue); err != nil {
				return ioErrorf(-1, err, "failed to write raw data index header").WithPath(path)
			}
		default:
			if _, err := writeChannelRawDataIndex(&metadata, w.order, ch); err != nil {
				return err
			}
		}

		properties := obj.properties
		if !obj.dirty && !obj.isNew {
			properties = nil
		}
		if err := writeUint32(&metadata, w.order, uint32(len(properties))); err != nil {
			return ioErrorf(-1, err, "failed to write property count").WithPath(path)
		}
		for _, prop := range properties {
			if err := writeString(&metadata, w.order, prop.Name); err != nil {
				return ioErrorf(-1, err, "failed to write property name").WithPath(path)
			}
			if err := writeUint32(&metadata, w.order, uint32(prop.TypeCode)); err != nil {
				return ioErrorf(-1, err, "failed to write property type").WithPath(path)
			}
			if err := writePropertyValue(&metadata, w.order, prop.TypeCode, prop.Value); err != nil {
				return fmt.Errorf("failed to write property %q value: %w", prop.Name, err)
			}
		}
	}

	if w.opts.Interleaved && len(channelsWithData) > 1 {
		for _, path := range channelsWithData {
			if w.channels[path].dataType == DataTypeString {
				return invariantf("interleaved segments cannot contain variable-width data types").WithPath(path)
			}
		}

		widths := make([]int, len(channelsWithData))
		for i, path := range channelsWithData {
			widths[i], _ = w.channels[path].dataType.fixedWidth()
		}

		for row := range numValuesInChunk {
			for i, path := range channelsWithData {
				ch := w.channels[path]
				n := widths[i]
				start := int(row) * n
				rawData.Write(ch.pending.Bytes()[start : start+n])
			}
		}
	} else {
		for _, path := range channelsWithData {
			ch := w.channels[path]
			if ch.dataType == DataTypeString {
				rawData.Write(appendStringOffsetTable(nil, w.order, ch))
			}
			rawData.Write(ch.pending.Bytes())
		}
	}

	tocMask := tocContainsMetadata
	if newObjectList {
		tocMask |= tocContainsNewObjectList
	}
	if rawData.Len() > 0 {
		tocMask |= tocContainsRawData
	}
	if w.opts.Interleaved {
		tocMask |= tocDataIsInterleaved
	}
	if w.opts.BigEndian {
		tocMask |= tocIsBigEndian
	}

	leadInOffset, err := w.currentEnd(w.data)
	if err != nil {
		return err
	}

	nextSegmentOffset := uint64(metadata.Len() + rawData.Len())
	rawDataOffset := uint64(metadata.Len())

	if err := w.writeLeadIn(w.data, false, tocMask, segmentIncomplete, rawDataOffset); err != nil {
		return err
	}
	if _, err := w.data.Write(metadata.Bytes()); err != nil {
		return ioErrorf(leadInOffset, err, "failed to write segment metadata")
	}
	if _, err := w.data.Write(rawData.Bytes()); err != nil {
		return ioErrorf(leadInOffset, err, "failed to write segment raw data")
	}
	if err := patchUint64(w.data, leadInOffset+12, w.order, nextSegmentOffset); err != nil {
		return err
	}

	var indexLeadInOffset int64
	if w.index != nil {
		indexLeadInOffset, err = w.currentEnd(w.index)
		if err != nil {
			return err
		}
		if err := w.writeLeadIn(w.index, true, tocMask, segmentIncomplete, rawDataOffset); err != nil {
			return err
		}
		if _, err := w.index.Write(metadata.Bytes()); err != nil {
			return ioErrorf(indexLeadInOffset, err, "failed to write mirrored segment metadata")
		}
		// The index lead-in mirrors the data file's lead-in value for
		// value, including next-segment-offset, even though the index
		// file itself holds none of the raw data that offset counts —
		// OpenIndexed needs the true offset to derive chunk positions in
		// the data file, and readMetadata never seeks an index reader by
		// this value, only the data reader.
		if err := patchUint64(w.index, indexLeadInOffset+12, w.order, nextSegmentOffset); err != nil {
			return err
		}
	}

	chunkNumValues := make(map[string]uint64, len(channelsWithData))
	for _, path := range channelsWithData {
		chunkNumValues[path] = w.channels[path].pendingNumValues
	}

	w.committed = &committedSegment{
		leadInOffset:      leadInOffset,
		indexLeadInOffset: indexLeadInOffset,
		nextSegmentOffset: nextSegmentOffset,
		rawDataOffset:     rawDataOffset,
		channelOrder:      channelsWithData,
		chunkNumValues:    chunkNumValues,
	}

	w.opts.logger().Debug("wrote full segment",
		zap.Int64("leadInOffset", leadInOffset),
		zap.Int("objects", len(order)),
		zap.Int("metadataBytes", metadata.Len()),
		zap.Int("rawDataBytes", rawData.Len()),
	)

	w.resetPending()
	return nil
}

// writeChannelRawDataIndex writes a channel's raw data index header and
// body (data type, dimension, value count, and — for strings — the total
// byte size) and returns that index's contribution to the chunk size.
func writeChannelRawDataIndex(buf *bytes.Buffer, order binary.ByteOrder, ch *writerChannel) (uint64, error) {
	indexLen := uint32(20)
	if ch.dataType == DataTypeString {
		indexLen = 28
	}
	if err := writeUint32(buf, order, indexLen); err != nil {
		return 0, ioErrorf(-1, err, "failed to write raw data index header").WithPath(ch.path)
	}
	if err := writeUint32(buf, order, uint32(ch.dataType)); err != nil {
		return 0, ioErrorf(-1, err, "failed to write raw data type").WithPath(ch.path)
	}
	if err := writeUint32(buf, order, 1); err != nil {
		return 0, ioErrorf(-1, err, "failed to write raw data dimension").WithPath(ch.path)
	}
	if err := writeUint64(buf, order, ch.pendingNumValues); err != nil {
		return 0, ioErrorf(-1, err, "failed to write raw data value count").WithPath(ch.path)
	}

	total := channelChunkTotalSize(ch)
	if ch.dataType == DataTypeString {
		if err := writeUint64(buf, order, total); err != nil {
			return 0, ioErrorf(-1, err, "failed to write string total size").WithPath(ch.path)
		}
	}

	return total, nil
}

// channelChunkTotalSize is the number of raw data bytes a channel
// contributes to the current chunk, including its string offset table when
// applicable.
func channelChunkTotalSize(ch *writerChannel) uint64 {
	if ch.dataType == DataTypeString {
		return uint64(4*len(ch.pendingStringLen) + ch.pending.Len())
	}
	width, _ := ch.dataType.fixedWidth()
	return uint64(width) * ch.pendingNumValues
}

// appendStringOffsetTable appends a string channel's offset table (the
// cumulative end-of-string byte offset for each value) to buf.
func appendStringOffsetTable(buf []byte, order binary.ByteOrder, ch *writerChannel) []byte {
	var cumulative uint32
	for _, l := range ch.pendingStringLen {
		cumulative += l
		buf = appendUint32(buf, order, cumulative)
	}
	return buf
}

// resetPending clears every channel's pending buffer and every object's
// dirty/new bookkeeping after a successful commit.
func (w *Writer) resetPending() {
	for _, ch := range w.channels {
		if ch.pendingNumValues > 0 {
			ch.hasCommittedData = true
		}
		ch.pending.Reset()
		ch.pendingStringLen = ch.pendingStringLen[:0]
		ch.pendingNumValues = 0
		ch.touchedThisWrite = false
	}
	for _, obj := range w.objects {
		obj.dirty = false
		obj.isNew = false
	}
}

// currentEnd returns the current write position by seeking to the end:
// Writer only ever appends, so this is always where the next segment
// begins.
func (w *Writer) currentEnd(ws io.WriteSeeker) (int64, error) {
	pos, err := ws.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, ioErrorf(-1, err, "failed to seek to end of file")
	}
	return pos, nil
}

// writeLeadIn writes a complete 28-byte lead-in at the writer's current
// position.
func (w *Writer) writeLeadIn(ws io.WriteSeeker, isIndex bool, tocMask uint32, nextSegmentOffset, rawDataOffset uint64) error {
	magic := tdmsMagicBytes
	if isIndex {
		magic = tdmsIndexMagicBytes
	}

	buf := make([]byte, 0, int(leadInSize))
	buf = append(buf, magic...)
	buf = appendUint32(buf, binary.LittleEndian, tocMask)
	buf = appendUint32(buf, w.order, w.opts.Version)
	buf = appendUint64(buf, w.order, nextSegmentOffset)
	buf = appendUint64(buf, w.order, rawDataOffset)

	if _, err := ws.Write(buf); err != nil {
		return ioErrorf(-1, err, "failed to write lead-in")
	}
	return nil
}

// patchUint64 seeks to offset and overwrites the 8 bytes there with v, then
// seeks back to the end of the file so the writer's next append lands in
// the right place.
func patchUint64(ws io.WriteSeeker, offset int64, order binary.ByteOrder, v uint64) error {
	if _, err := ws.Seek(offset, io.SeekStart); err != nil {
		return ioErrorf(offset, err, "failed to seek to patch offset")
	}
	buf := appendUint64(nil, order, v)
	if _, err := ws.Write(buf); err != nil {
		return ioErrorf(offset, err, "failed to patch value")
	}
	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return ioErrorf(offset, err, "failed to seek back to end of file")
	}
	return nil
}
