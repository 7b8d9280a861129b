// Package gate implements the lock that coordinates record appenders with the
// flush path.
//
// A Gate is a single atomic counter:
//
//	 0  unlocked
//	 N  N shared holders (appenders)
//	-1  held exclusively (flush)
//
// Appenders take the gate shared and spin while it is held exclusively. The
// flush path either tries the exclusive lock once and gives up when any
// appender is inside, or, while every other thread is stopped, forces it.
// Neither side ever parks in the OS scheduler, so a thread suspended while
// holding the gate shared cannot deadlock an opportunistic flush.
//
// Shared sections must be short: a few memory operations and one copy. The
// spin uses bounded exponential backoff and then yields the goroutine.
package gate
