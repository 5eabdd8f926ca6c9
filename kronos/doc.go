// Package kronos is a client for the Kronos event store.
//
// Kronos stores JSON events in named streams, ordered by a 100ns-tick
// timestamp ("@time") and identified by a time-sortable "@id". Reads are
// streamed back as newline-delimited JSON and exposed as a *stream.Stream:
//
//	client, err := kronos.New(kronos.Options{URL: "localhost:8150", Namespace: "prod"})
//	if err != nil {
//		return err
//	}
//	s, err := client.Get(ctx, "clicks", kronos.FromTime(from), kronos.Now(), kronos.GetOptions{})
//	if err != nil {
//		return err
//	}
//	if err := s.Each(func(rec stream.Record) { fmt.Println(rec.Event.ID()) }); err != nil {
//		return err
//	}
//	return s.Wait(ctx)
//
// Get and GetStreams re-issue the request when the connection fails, the
// server answers with a non-2xx status, or a response breaks off or carries a
// malformed line, up to DefaultRetryCeiling attempts in total. A re-issued
// read feeds the stream the caller already holds and starts from the
// beginning, so records seen before the failure can arrive twice. Once the
// ceiling is reached the stream fails with the last error; callers can then
// resume with GetOptions.StartID set to the last "@id" they processed.
//
// Errors are classified by package kerrors.
package kronos
