//go:build !linux && !darwin

package sock

import "net"

func BindAndListen(c Candidate, backlog int) (int, error) { return -1, ErrPlatformNotSupported }

func ConnectTo(c Candidate) (int, error) { return -1, ErrPlatformNotSupported }

func Accept(lfd int) (int, error) { return -1, ErrPlatformNotSupported }

func Read(fd int, p []byte) (int, error) { return 0, ErrPlatformNotSupported }

func Write(fd int, p []byte) (int, error) { return 0, ErrPlatformNotSupported }

func Close(fd int) error { return ErrPlatformNotSupported }

func SetNonblock(fd int, nonblock bool) error { return ErrPlatformNotSupported }

func LocalAddr(fd int) (*net.TCPAddr, error) { return nil, ErrPlatformNotSupported }

func PeerAddr(fd int) (*net.TCPAddr, error) { return nil, ErrPlatformNotSupported }
