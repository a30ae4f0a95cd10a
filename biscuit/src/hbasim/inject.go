package hbasim

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"

/// Commands returns the commands fetched so far, in issue order.
func (s *Sim_t) Commands() []Cmdrec_t {
	s.Lock()
	defer s.Unlock()
	return append([]Cmdrec_t(nil), s.log...)
}

/// Clear_log forgets the recorded commands.
func (s *Sim_t) Clear_log() {
	s.Lock()
	defer s.Unlock()
	s.log = nil
}

/// Inject makes the command issued after the next `after` commands on port
/// pn fail by raising the interrupt status bits. The failed command's issue
/// bit stays set.
func (s *Sim_t) Inject(pn int, after int, bits uint32) {
	s.Lock()
	defer s.Unlock()
	ps := &s.ports[pn]
	ps.inj = append(ps.inj, inject_t{after: ps.ncmd + after, bits: bits})
}

/// Raise sets port interrupt status bits as if the port signalled them.
func (s *Sim_t) Raise(pn int, bits uint32) {
	s.Lock()
	defer s.Unlock()
	s._raise(pn, bits)
}

/// Set_delay makes commands on port pn complete only after delay(slot)
/// reads of the command issue register. A nil delay completes at once.
func (s *Sim_t) Set_delay(pn int, delay func(slot int) int) {
	s.Lock()
	defer s.Unlock()
	s.ports[pn].delay = delay
}

/// Busy keeps the task file busy for the next n reads, or forever if n is
/// negative.
func (s *Sim_t) Busy(pn int, n int) {
	s.Lock()
	defer s.Unlock()
	s.ports[pn].busy = n
}

/// Stick makes port pn's engines report running whatever their enables
/// say. With on false the running bits follow the enables again.
func (s *Sim_t) Stick(pn int, on bool) {
	s.Lock()
	defer s.Unlock()
	ps := &s.ports[pn]
	ps.stuck = on
	i := preg(pn, hba.PxCMD)
	if on {
		s.regs[i] |= hba.CMD_CR | hba.CMD_FR
		return
	}
	cmd := s.regs[i]
	if cmd&hba.CMD_ST == 0 {
		cmd &^= hba.CMD_CR
	}
	if cmd&hba.CMD_FRE == 0 {
		cmd &^= hba.CMD_FR
	}
	s.regs[i] = cmd
}

/// Outstanding returns the slots of port pn whose completion is deferred.
func (s *Sim_t) Outstanding(pn int) int {
	s.Lock()
	defer s.Unlock()
	return len(s.ports[pn].pending)
}
