package layer

import "github.com/pkg/errors"

// Tensors are the external-memory buffers of one layer run. Input and Output
// are position-interleaved: the channels of one spatial position are packed
// together. Weights hold KernelH*KernelW bytes per channel pair, channels
// contiguous. Scale and Bias hold one little-endian 32-bit word per output
// channel.
type Tensors struct {
	Input   []byte
	Weights []byte
	Scale   []byte
	Bias    []byte
	Output  []byte
}

func (t Tensors) validate(p Params) error {
	if want := p.InH * p.InW * p.InChannels; len(t.Input) != want {
		return errors.Errorf("input tensor holds %d bytes, layer needs %d",
			len(t.Input), want)
	}

	wantW := p.OutChannels * p.KernelH * p.KernelW
	if !p.Depthwise {
		wantW *= p.InChannels
	}
	if len(t.Weights) != wantW {
		return errors.Errorf("weight tensor holds %d bytes, layer needs %d",
			len(t.Weights), wantW)
	}

	if p.ScaleBias {
		if want := p.OutChannels * 4; len(t.Scale) != want || len(t.Bias) != want {
			return errors.Errorf(
				"scale and bias must hold %d bytes each, got %d and %d",
				want, len(t.Scale), len(t.Bias))
		}
	} else if t.Scale != nil || t.Bias != nil {
		return errors.New("layer carries no scale/bias but tensors were given")
	}

	if want := p.OutH() * p.OutW() * p.OutChannels; len(t.Output) != want {
		return errors.Errorf("output tensor holds %d bytes, layer needs %d",
			len(t.Output), want)
	}

	return nil
}
