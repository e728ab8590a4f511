package simhw

func (d *Device) signalWorker() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Start runs the frame worker of an auto-mode device. Starting a running
// device does nothing.
func (d *Device) Start() {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()

	if d.mode != ModeAuto || d.done != nil {
		return
	}

	d.quit = make(chan struct{})
	d.done = make(chan struct{})

	go d.work(d.quit, d.done)
}

func (d *Device) work(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			return
		case <-d.kick:
			for d.Step() {
				select {
				case <-quit:
					return
				default:
				}
			}
		}
	}
}

// Stop ends the frame worker and waits for it to finish the frame it is on.
// Triggered frames that have not started stay pending.
func (d *Device) Stop() {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()

	if d.done == nil {
		return
	}

	close(d.quit)
	<-d.done

	d.quit = nil
	d.done = nil
}
