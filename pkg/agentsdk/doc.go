// Package agentsdk lets a Go program act as an agent under evaluation.
//
// An agent is any executable that answers line-delimited JSON-RPC 2.0 on stdin/stdout. This
// package implements that side of the exchange: implement [Agent] and hand it to a [Server].
//
//	type calculator struct{}
//
//	func (calculator) Step(ctx context.Context, input string) (*agentsdk.Result, error) {
//	    return agentsdk.Text("42").WithThought("6*7 is 42"), nil
//	}
//
//	func main() {
//	    srv := agentsdk.NewServer(calculator{}, agentsdk.WithName("calculator"))
//	    if err := srv.ServeStdio(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Agents that keep conversation state may also implement [Resetter]; agents that want to
// advertise a name or capabilities implement [Describer] or use [WithName].
//
// Never write to stdout from an agent: it is the protocol channel. Diagnostics belong on
// stderr, which the harness captures and attaches to failure reports.
package agentsdk
