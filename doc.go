// Package devicewatch keeps the recorded reachability of network devices in
// line with reality.
//
// A [DeviceWatch] periodically sweeps every device in a [Store], probes it,
// writes back any status that changed and then publishes a
// [StatusChangeEvent] to its subscribers. The same data is served over an
// authenticated HTTP API with Server-Sent Events and WebSocket push streams.
//
// # Quick Start
//
//	db, err := devicewatch.OpenSQLite("local.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	dw, err := devicewatch.New(
//	    devicewatch.WithStore(db),
//	    devicewatch.WithJWTSecret(os.Getenv("JWT_SECRET")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	dw.Start(ctx)
//
// # Reconciliation
//
// A sweep takes a snapshot of the device list, probes each device and only
// writes when the observed status differs from the recorded one. An event is
// published only after the write succeeds, so subscribers never see a status
// the store does not hold. A probe that cannot be performed leaves the
// device untouched until the next sweep. Sweeps never overlap: ticks that
// arrive while a sweep is still running are skipped.
//
// # Status Callbacks
//
// Register a callback to react to changes in-process:
//
//	dw, err := devicewatch.New(
//	    devicewatch.WithStore(db),
//	    devicewatch.WithoutHTTP(),
//	    devicewatch.WithStatusCallback(func(ev devicewatch.StatusChangeEvent) {
//	        if ev.Status == devicewatch.StatusDown {
//	            log.Printf("device %d went down", ev.DeviceID)
//	        }
//	    }),
//	)
//
// Callbacks run on the sweep goroutine and must not block. Panics are
// recovered and logged.
package devicewatch
