package hdfsftpd

// commandTable is the engine's command dispatch table: which verbs are
// allowed before login, which must serialize against the session's single
// in-flight transfer, and their handlers (spec §4.4).
var commandTable = map[string]*commandDescription{
	"USER": {open: true, fn: handleUSER},
	"PASS": {open: true, fn: handlePASS},
	"QUIT": {open: true, specialAction: true, fn: handleQUIT},
	"NOOP": {open: true, fn: handleNOOP},
	"SYST": {open: true, fn: handleSYST},
	"FEAT": {open: true, fn: handleFEAT},
	"HELP": {open: true, fn: handleHELP},
	"CLNT": {open: true, fn: handleCLNT},

	"TYPE": {fn: handleTYPE},
	"STRU": {fn: handleSTRU},
	"MODE": {fn: handleMODE},
	"OPTS": {fn: handleOPTS},
	"STAT": {fn: handleSTAT},
	"SITE": {fn: handleSITE},
	"ALLO": {fn: handleALLO},

	"PWD":  {fn: handlePWD},
	"XPWD": {fn: handlePWD},
	"CWD":  {fn: handleCWD},
	"XCWD": {fn: handleCWD},
	"CDUP": {fn: handleCDUP},
	"XCUP": {fn: handleCDUP},
	"MKD":  {fn: handleMKD},
	"XMKD": {fn: handleMKD},
	"RMD":  {fn: handleRMD},
	"XRMD": {fn: handleRMD},

	"PASV": {fn: handlePASV},
	"PORT": {fn: handlePORT},

	"LIST": {transferRelated: true, fn: handleLIST},
	"NLST": {transferRelated: true, fn: handleNLST},
	"RETR": {transferRelated: true, fn: handleRETR},
	"STOR": {transferRelated: true, fn: handleSTOR},
	"APPE": {transferRelated: true, fn: handleAPPE},
	"STOU": {transferRelated: true, fn: handleSTOU},

	"SIZE": {fn: handleSIZE},
	"MDTM": {fn: handleMDTM},
	"DELE": {fn: handleDELE},
	"RNFR": {fn: handleRNFR},
	"RNTO": {fn: handleRNTO},
	"REST": {fn: handleREST},

	"ABOR": {specialAction: true, fn: handleABOR},
}
