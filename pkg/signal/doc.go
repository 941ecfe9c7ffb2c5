// Package signal implements a broadcast "latest value" signal.
//
// A Signal holds one value of type T. Send replaces it and releases every
// subscriber registered at that moment; a released subscriber's next Receive
// returns immediately with the current value. Several Sends between two Receives
// coalesce: the subscriber sees the newest value once. Nothing is queued.
//
// Two flavours exist. Local signals live inside one process. Cross-process signals
// are identified by a channel name and shared by every process on the host that
// opens the same name: the value is serialized into a shared memory segment and a
// futex-backed event wakes a relay goroutine in each attached process, which
// republishes the value into its local signal.
//
// Example usage:
//
//	f, err := signal.NewFactory(signal.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	temp, err := signal.Open[float64](f, "sensor.temperature")
//	if err != nil {
//		return err
//	}
//	defer temp.Close()
//
//	sub, _ := temp.Subscribe()
//	go func() {
//		for {
//			v, err := sub.Receive(ctx)
//			if err != nil {
//				return
//			}
//			fmt.Println("temperature", v)
//		}
//	}()
//	_ = temp.Send(21.5)
//
// Values are serialized with package serializer. Types it cannot handle are
// rejected when the signal is opened, never on Send.
//
// Settings come from Config, which LoadConfig fills from SIGNAL_* environment
// variables and LoadConfigFile additionally from a TOML file.
package signal
