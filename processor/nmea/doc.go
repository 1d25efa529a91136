// Package nmea decodes the planar talker sentences: own-ship position
// (GGA, RMC, GLL), own-ship heading and velocity (HDT, HDG, VTG), radar
// targets (TTM, TLL) and the proprietary PTRK tracker sentence.
//
// Standard sentences are parsed with github.com/adrianmo/go-nmea. Radar and
// proprietary sentences are split here, with the checksum verified the same
// way.
package nmea
