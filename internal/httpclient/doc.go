// Package httpclient provides the HTTP transport used to submit events.
//
// [NewClient] returns a client tuned for many concurrent short POSTs with
// connection reuse:
//
//	client := httpclient.NewClient(30 * time.Second)
//
// [NewJSONRequest] builds a replayable POST carrying an encoded payload:
//
//	req, err := httpclient.NewJSONRequest(ctx, endpoint, body, "ga4sim/1.0")
//	resp, err := client.Do(req)
package httpclient
