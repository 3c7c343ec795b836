package obs

// normalized is one raw record decoded into the unified shape.
type normalized struct {
	id  SignalID
	rec Record

	// phaseValid gates carrier-phase history and derived Doppler.
	phaseValid bool
}

// pseudorangeDivisor converts raw pseudorange units to meters.
// Legacy-A and Legacy-B carry centimeters, later generations 2 cm units.
func pseudorangeDivisor(gen Generation) float64 {
	if gen == GenerationLegacyA || gen == GenerationLegacyB {
		return 100
	}
	return 50
}

// fixed8 decodes an integer part plus an 8-bit binary fraction.
func fixed8(i int64, f uint8) float64 {
	return float64(i) + float64(f)/256
}

// normalize decodes one raw record of the given generation.
func normalize(gen Generation, raw RawRecord) normalized {
	sat := raw.Sat
	// Legacy generations numbered GPS satellites from zero.
	if gen.Legacy() && raw.Code.IsGPS() {
		sat++
	}

	rec := Record{
		Pseudorange:  float64(raw.PseudorangeRaw) / pseudorangeDivisor(gen),
		CarrierPhase: fixed8(int64(raw.CarrierInt), raw.CarrierFrac),
		CN0:          float64(raw.CN0) / 4,
		Lock:         raw.Lock,
	}

	var phaseValid bool
	if gen == GenerationCurrent {
		rec.Flags = Flags(raw.Flags)
		rec.MeasuredDoppler = fixed8(int64(raw.DopplerInt), raw.DopplerFrac)
		rec.PseudorangeValid = rec.Flags&FlagPseudorangeValid != 0
		rec.CarrierValid = rec.Flags&FlagCarrierValid != 0
		rec.DopplerValid = rec.Flags&FlagDopplerValid != 0
		phaseValid = rec.PseudorangeValid && rec.CarrierValid
	} else {
		// Legacy messages carry no validity bits; pseudorange and carrier
		// phase are always present.
		rec.PseudorangeValid = true
		rec.CarrierValid = true
		phaseValid = true
	}

	return normalized{
		id:         SignalID{Sat: sat, Code: raw.Code},
		rec:        rec,
		phaseValid: phaseValid,
	}
}

// towResidual is the per-record refinement added to the epoch's running
// time of week, in seconds. Only the current generation carries one.
func towResidual(gen Generation, raw RawRecord) float64 {
	if gen != GenerationCurrent {
		return 0
	}
	return float64(raw.NsResidual) * 1e-9
}
