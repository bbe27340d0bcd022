package main

import (
	"net"

	"github.com/pires/go-proxyproto"
	"github.com/sirupsen/logrus"
)

// listen opens the web listener, wrapped for the PROXY protocol when the
// gateway sits behind HAProxy.
func listen(address string, proxyProtocol bool) (net.Listener, error) {
	logf := LoggingFormat{Path: "listener", Function: "listen", Type: LogType.Startup}

	list, err := net.Listen("tcp", address)
	if err != nil {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "failed to listen on " + address
		return nil, logf.ToError()
	}
	if !proxyProtocol {
		return list, nil
	}

	logf.Level = logrus.InfoLevel
	logf.Message = "accepting PROXY protocol headers"
	logf.AddField("address", address)
	logf.Print()
	return &proxyproto.Listener{Listener: list}, nil
}
