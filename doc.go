// Package tdms reads and writes the Technical Data Management Streaming
// (TDMS) file format used by National Instruments (NI) software such as
// LabVIEW.
//
// # Reading
//
// Open a file with [Open] or parse one from an [io.ReadSeeker] with [New].
// Access groups and channels via the [File.Groups] map, then read channel
// data using the typed streaming, batch, or read-all methods on [Channel].
//
//	file, err := tdms.Open("data.tdms")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer file.Close()
//
//	for _, group := range file.Groups {
//		for _, channel := range group.Channels {
//			// Iterate through individual values (uses batching internally).
//			for value, err := range channel.ReadDataAsFloat64() {
//				if err != nil {
//					log.Fatal(err)
//				}
//				fmt.Println(value)
//			}
//
//			// Iterate through batches of values.
//			for batch, err := range channel.ReadDataAsFloat64Batch() {
//				if err != nil {
//					log.Fatal(err)
//				}
//				fmt.Println(batch)
//			}
//
//			// Batch size is configurable (both for the individual value
//			// streamer and the batch streamer).
//			for batch, err := range channel.ReadDataAsFloat64Batch(tdms.BatchSize(1024)) {
//				if err != nil {
//					log.Fatal(err)
//				}
//				fmt.Println(batch)
//			}
//
//			// Read all values into a single slice.
//			values, err := channel.ReadDataFloat64All()
//			if err != nil {
//				log.Fatal(err)
//			}
//			fmt.Println(values)
//		}
//	}
//
// A filename ending in ".tdms_index" is treated as an index file, which
// holds every segment's metadata but no raw data. [OpenIndexed] pairs a
// data file with its index file, parsing the (much smaller) index but
// reading channel data from the data file — useful for opening large files
// for random-access reads without scanning their full length.
//
//	file, err := tdms.OpenIndexed("data.tdms", "data.tdms_index")
//
// [New] parses a [File] from an [io.ReadSeeker] already in memory, when the
// data doesn't come from a file on disk:
//
//	file, err := tdms.New(bytes.NewReader(tdmsBytes), false, int64(len(tdmsBytes)))
//
// By default, a truncated file left behind by a writer that crashed
// mid-segment is read up to the last complete segment, with
// [File.IsIncomplete] set to true. Pass [ReaderOptions] with Strict set to
// instead get [ErrTruncated] from [Open]/[New]/[OpenIndexed].
//
// # Writing
//
// [CreateFile] creates a new TDMS file (and, with
// [WriterOptions.CreateIndexFile], its companion index file) ready for
// incremental writes. Declare groups and channels, set properties, append
// values, and commit them with [Writer.WriteSegment]; [Writer.Close] does
// a final flush before closing the underlying files.
//
//	w, err := tdms.CreateFile("data.tdms", tdms.DefaultWriterOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.EnsureChannel("measurements", "voltage", tdms.DataTypeFloat64); err != nil {
//		log.Fatal(err)
//	}
//	if err := w.AppendValues("measurements", "voltage", []float64{1.0, 2.0, 3.0}); err != nil {
//		log.Fatal(err)
//	}
//	if err := w.WriteSegment(); err != nil {
//		log.Fatal(err)
//	}
//
// Each [Writer.WriteSegment] call writes a crash-safe segment: its lead-in
// is written first with the next-segment-offset field set to an
// all-ones sentinel, the segment body follows, and only then is the
// lead-in patched in place with the real offset. When nothing about the
// object list or properties has changed since the previous call and every
// previously-written channel (and no other) was appended to again with a
// whole multiple of its previous per-chunk value count, WriteSegment
// instead extends the previous segment's raw data in place rather than
// writing a new lead-in and metadata block. This applies only to
// non-interleaved writers and fixed-width channels.
//
// # Properties
//
// Files, groups, and channels can all have properties. To get a
// type-safe property value, use the As[Type]() methods, e.g.
// [Property.AsFloat64], [Property.AsUint32], [Property.AsString], etc. Use
// [NewProperty] to build one for writing, inferring its TDMS type from the
// Go value.
//
//	authorProp := file.Properties["Author"]
//
//	// Don't confuse String() (the Stringer interface implementation) with
//	// AsString(), which returns the value as a string.
//	author, err := authorProp.AsString()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Timestamps are stored as [Timestamp], which is more precise than
// time.Time. Convert between the two with [Timestamp.AsTime] and
// [NewTimestamp]. Property values can be retrieved as their TDMS timestamp
// using [Property.AsTimestamp], or automatically converted to time.Time
// using [Property.AsTime].
//
//	createdAtProp := file.Properties["CreatedAt"]
//	createdAt, err := createdAtProp.AsTimestamp()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("File was created at %s", createdAt.AsTime())
//
// TDMS supports 128-bit extended precision floating point numbers. To do
// arithmetic with these, either convert them to float64 (losing precision)
// or work with [Float128.AsBigFloat] directly, maintaining full precision
// at the cost of making it a bit more fiddly to work with. This applies
// equally to properties and channel data.
//
//	calibrationFactorProp := channel.Properties["CalibrationFactor"]
//	calibrationFactor, err := calibrationFactorProp.AsFloat128()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Calibration factor is %s", calibrationFactor.AsBigFloat())
//
// You can also get a property's value as [any] and perform your own type
// switch. This is an exhaustive list of the types [tdms] supports:
//
//	prop := file.Properties["analysisResults"]
//	switch v := prop.Value.(type) {
//	case int8, int16, int32, int64:
//		fmt.Printf("Analysis results are a signed integer: %v", v)
//	case uint8, uint16, uint32, uint64:
//		fmt.Printf("Analysis results are an unsigned integer: %v", v)
//	case float32, float64:
//		fmt.Printf("Analysis results are a floating point number: %v", v)
//	case tdms.Float128:
//		fmt.Printf("Analysis results are a 128-bit floating point number: %v", v)
//	case string:
//		fmt.Printf("Analysis results are a string: %v", v)
//	case bool:
//		fmt.Printf("Analysis results are a boolean: %v", v)
//	case tdms.Timestamp:
//		fmt.Printf("Analysis results are a timestamp: %v", v)
//	case complex64, complex128:
//		fmt.Printf("Analysis results are a complex number: %v", v)
//	default:
//		fmt.Printf("Analysis results are of unknown type: %T", v)
//	}
//
// # DAQmx raw data
//
// Channels produced by NI's DAQmx driver store samples as scaled integers
// in one or more raw buffers rather than a uniform element array. Read
// their extracted, unscaled values with [Channel.ReadDAQmxRawAll]; mapping
// them through NI's scaling metadata back to physical units is out of
// scope (see the package-level comment in scaling.go).
package tdms
